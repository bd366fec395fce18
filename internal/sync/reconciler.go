package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/FaithfulHarvest/planning-center-viz/internal/model"
	"github.com/FaithfulHarvest/planning-center-viz/internal/monitoring"
	"github.com/FaithfulHarvest/planning-center-viz/internal/pco"
)

// RecordStore persists analytical records. Implemented by
// store.RecordRepository; tests substitute an in-memory fake.
type RecordStore interface {
	UpsertPeople(ctx context.Context, tenantID uuid.UUID, people []model.Person) (int, error)
	UpsertEvents(ctx context.Context, tenantID uuid.UUID, events []model.Event) (int, error)
	UpsertCheckIns(ctx context.Context, tenantID uuid.UUID, checkIns []model.CheckIn) (int, error)
}

// Reconciler maps provider records into the tenant's analytical
// tables. Mapping is explicit per resource: known fields are pulled
// out of the dynamic attribute bag, unknown attributes are ignored,
// and a record missing its required fields is skipped with a
// ReconciliationError rather than failing the page. Upsert semantics
// make reconciliation idempotent under page retries.
type Reconciler struct {
	records RecordStore
}

func NewReconciler(records RecordStore) *Reconciler {
	return &Reconciler{records: records}
}

// Reconcile writes one page of the given resource for the tenant,
// normalizing timestamps to the tenant's location. Returns the number
// of records written; skipped records are excluded from the count.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID uuid.UUID, resource pco.Resource, page *pco.Page, loc *time.Location) (int, error) {
	now := time.Now().UTC()

	switch resource.Name {
	case pco.People.Name:
		people := make([]model.Person, 0, len(page.Records))
		for _, rec := range page.Records {
			p, err := mapPerson(tenantID, rec, loc, now)
			if err != nil {
				r.skip(tenantID, resource, err)
				continue
			}
			people = append(people, p)
		}
		return r.records.UpsertPeople(ctx, tenantID, people)

	case pco.Events.Name:
		events := make([]model.Event, 0, len(page.Records))
		for _, rec := range page.Records {
			e, err := mapEvent(tenantID, rec, loc, now)
			if err != nil {
				r.skip(tenantID, resource, err)
				continue
			}
			events = append(events, e)
		}
		return r.records.UpsertEvents(ctx, tenantID, events)

	case pco.CheckIns.Name:
		checkIns := make([]model.CheckIn, 0, len(page.Records))
		for _, rec := range page.Records {
			c, err := mapCheckIn(tenantID, rec, page, loc, now)
			if err != nil {
				r.skip(tenantID, resource, err)
				continue
			}
			checkIns = append(checkIns, c)
		}
		return r.records.UpsertCheckIns(ctx, tenantID, checkIns)

	default:
		return 0, fmt.Errorf("sync: unknown resource %q", resource.Name)
	}
}

func (r *Reconciler) skip(tenantID uuid.UUID, resource pco.Resource, err error) {
	log.Warn().
		Err(err).
		Str("tenant_id", tenantID.String()).
		Str("resource", resource.Name).
		Msg("Skipping malformed provider record")
	monitoring.RecordsSkipped.WithLabelValues(resource.Name).Inc()
}

func mapPerson(tenantID uuid.UUID, rec pco.Record, loc *time.Location, now time.Time) (model.Person, error) {
	if rec.ID == "" {
		return model.Person{}, &ReconciliationError{Resource: "people", Reason: "missing natural key"}
	}
	p := model.Person{
		TenantID:         tenantID,
		PersonID:         rec.ID,
		FirstName:        rec.StringAttr("first_name"),
		LastName:         rec.StringAttr("last_name"),
		Gender:           rec.StringAttr("gender"),
		Child:            rec.BoolAttr("child"),
		MembershipStatus: rec.StringAttr("status"),
		CreatedAtLocal:   localTime(rec, "created_at", loc),
		UpdatedAtLocal:   localTime(rec, "updated_at", loc),
		LoadTimestamp:    now,
	}
	if t, ok := rec.TimeAttr("birthdate"); ok {
		p.Birthdate = &t
	}
	return p, nil
}

func mapEvent(tenantID uuid.UUID, rec pco.Record, loc *time.Location, now time.Time) (model.Event, error) {
	if rec.ID == "" {
		return model.Event{}, &ReconciliationError{Resource: "events", Reason: "missing natural key"}
	}
	return model.Event{
		TenantID:       tenantID,
		EventID:        rec.ID,
		Name:           rec.StringAttr("name"),
		Frequency:      rec.StringAttr("frequency"),
		CreatedAtLocal: localTime(rec, "created_at", loc),
		UpdatedAtLocal: localTime(rec, "updated_at", loc),
		LoadTimestamp:  now,
	}, nil
}

func mapCheckIn(tenantID uuid.UUID, rec pco.Record, page *pco.Page, loc *time.Location, now time.Time) (model.CheckIn, error) {
	if rec.ID == "" {
		return model.CheckIn{}, &ReconciliationError{Resource: "check_ins", Reason: "missing natural key"}
	}

	checkedIn, ok := rec.TimeAttr("created_at")
	if !ok {
		return model.CheckIn{}, &ReconciliationError{Resource: "check_ins", RecordID: rec.ID, Reason: "missing check-in timestamp"}
	}
	local := checkedIn.In(loc)

	c := model.CheckIn{
		TenantID:      tenantID,
		CheckInID:     rec.ID,
		Kind:          rec.StringAttr("kind"),
		CheckedInAt:   &local,
		CheckedInDate: local.Format("2006-01-02"),
		CheckedInTime: local.Format("15:04:05"),
		LoadTimestamp: now,
	}

	if ref, ok := rec.Rel("person"); ok {
		c.PersonID = ref.ID
		if person, ok := page.IncludedRecord(ref); ok {
			c.PersonGender = person.StringAttr("gender")
			if t, ok := person.TimeAttr("birthdate"); ok {
				c.PersonBirthdate = &t
			}
		}
	}
	if ref, ok := rec.Rel("event"); ok {
		c.EventID = ref.ID
	}
	if ref, ok := rec.Rel("event_times"); ok {
		c.EventTimeID = ref.ID
	}

	return c, nil
}

// localTime normalizes an attribute timestamp to the tenant's wall
// clock. Changing the tenant's timezone does not rewrite stored rows;
// only the next refresh re-normalizes.
func localTime(rec pco.Record, attr string, loc *time.Location) *time.Time {
	t, ok := rec.TimeAttr(attr)
	if !ok {
		return nil
	}
	local := t.In(loc)
	return &local
}
