package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/FaithfulHarvest/planning-center-viz/internal/model"
)

// RecordRepository upserts analytical records. Every statement keys
// on (tenant_id, natural key), so re-reconciling an overlapping page
// updates rows in place and never duplicates them. The tenant id
// comes from the job, never from the record payload.
type RecordRepository struct {
	s *Store
}

func (r *RecordRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpsertPeople writes one page of person records for the tenant.
func (r *RecordRepository) UpsertPeople(ctx context.Context, tenantID uuid.UUID, people []model.Person) (int, error) {
	query := `
		INSERT INTO pc_people (tenant_id, person_id, first_name, last_name, gender, birthdate,
		                       child, membership_status, created_at_local, updated_at_local, load_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, person_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			gender = EXCLUDED.gender,
			birthdate = EXCLUDED.birthdate,
			child = EXCLUDED.child,
			membership_status = EXCLUDED.membership_status,
			created_at_local = EXCLUDED.created_at_local,
			updated_at_local = EXCLUDED.updated_at_local,
			load_timestamp = EXCLUDED.load_timestamp
	`
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range people {
			_, err := tx.ExecContext(ctx, query,
				tenantID, p.PersonID, p.FirstName, p.LastName, p.Gender, p.Birthdate,
				p.Child, p.MembershipStatus, p.CreatedAtLocal, p.UpdatedAtLocal, p.LoadTimestamp,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(people), nil
}

// UpsertEvents writes one page of event records for the tenant.
func (r *RecordRepository) UpsertEvents(ctx context.Context, tenantID uuid.UUID, events []model.Event) (int, error) {
	query := `
		INSERT INTO pc_events (tenant_id, event_id, name, frequency,
		                       created_at_local, updated_at_local, load_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, event_id) DO UPDATE SET
			name = EXCLUDED.name,
			frequency = EXCLUDED.frequency,
			created_at_local = EXCLUDED.created_at_local,
			updated_at_local = EXCLUDED.updated_at_local,
			load_timestamp = EXCLUDED.load_timestamp
	`
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range events {
			_, err := tx.ExecContext(ctx, query,
				tenantID, e.EventID, e.Name, e.Frequency,
				e.CreatedAtLocal, e.UpdatedAtLocal, e.LoadTimestamp,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// UpsertCheckIns writes one page of check-in records for the tenant.
func (r *RecordRepository) UpsertCheckIns(ctx context.Context, tenantID uuid.UUID, checkIns []model.CheckIn) (int, error) {
	query := `
		INSERT INTO pc_checkins (tenant_id, checkin_id, person_id, event_id, event_time_id, kind,
		                         checked_in_at, checked_in_date, checked_in_time,
		                         person_gender, person_birthdate, load_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, checkin_id) DO UPDATE SET
			person_id = EXCLUDED.person_id,
			event_id = EXCLUDED.event_id,
			event_time_id = EXCLUDED.event_time_id,
			kind = EXCLUDED.kind,
			checked_in_at = EXCLUDED.checked_in_at,
			checked_in_date = EXCLUDED.checked_in_date,
			checked_in_time = EXCLUDED.checked_in_time,
			person_gender = EXCLUDED.person_gender,
			person_birthdate = EXCLUDED.person_birthdate,
			load_timestamp = EXCLUDED.load_timestamp
	`
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range checkIns {
			var checkedInDate, checkedInTime interface{}
			if c.CheckedInDate != "" {
				checkedInDate = c.CheckedInDate
			}
			if c.CheckedInTime != "" {
				checkedInTime = c.CheckedInTime
			}
			_, err := tx.ExecContext(ctx, query,
				tenantID, c.CheckInID, c.PersonID, c.EventID, c.EventTimeID, c.Kind,
				c.CheckedInAt, checkedInDate, checkedInTime,
				c.PersonGender, c.PersonBirthdate, c.LoadTimestamp,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(checkIns), nil
}
