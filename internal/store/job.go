package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FaithfulHarvest/planning-center-viz/internal/model"
)

const (
	// jobCacheTTL bounds how long a latest-job snapshot may serve the
	// 2-second dashboard poll loop. Only terminal snapshots are ever
	// cached, so the TTL trades freshness against a new job appearing.
	jobCacheTTL = 30 * time.Second

	uniqueViolation = "23505"
)

// JobRepository handles database operations for sync jobs. The
// one-active-job-per-tenant invariant is enforced by a partial unique
// index on (tenant_id) WHERE status IN ('pending','running'); Create
// translates that violation into ErrJobActive so a race between two
// refresh requests yields exactly one new job.
type JobRepository struct {
	s *Store
}

func jobCacheKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("job:latest:%s", tenantID.String())
}

// Create inserts a new pending job, claiming the tenant's job slot.
func (r *JobRepository) Create(ctx context.Context, tenantID uuid.UUID) (*model.SyncJob, error) {
	job := &model.SyncJob{
		ID:       uuid.New(),
		TenantID: tenantID,
		Status:   model.JobPending,
	}

	query := `
		INSERT INTO sync_jobs (id, tenant_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING created_at, updated_at
	`
	err := r.s.db.QueryRowContext(ctx, query, job.ID, tenantID, job.Status).
		Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrJobActive
		}
		return nil, err
	}

	r.s.redis.Del(ctx, jobCacheKey(tenantID))
	return job, nil
}

// MarkRunning transitions pending -> running and records the number
// of planned endpoints. Allowed exactly once per job.
func (r *JobRepository) MarkRunning(ctx context.Context, jobID uuid.UUID, totalEndpoints int) error {
	query := `
		UPDATE sync_jobs
		SET status = 'running', started_at = now(), total_endpoints = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING tenant_id
	`
	var tenantID uuid.UUID
	err := r.s.db.QueryRowContext(ctx, query, jobID, totalEndpoints).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("store: job %s is not pending", jobID)
	}
	if err != nil {
		return err
	}

	r.s.redis.Del(ctx, jobCacheKey(tenantID))
	return nil
}

// UpdateProgress records page-boundary progress on a running job.
// GREATEST guards keep both counters monotonic for concurrent status
// readers even if updates land out of order.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID uuid.UUID, currentEndpoint string, completedEndpoints, recordsFetched int) error {
	query := `
		UPDATE sync_jobs
		SET current_endpoint = $2,
		    completed_endpoints = GREATEST(completed_endpoints, $3),
		    records_fetched = GREATEST(records_fetched, $4),
		    updated_at = now()
		WHERE id = $1 AND status = 'running'
		RETURNING tenant_id
	`
	var tenantID uuid.UUID
	err := r.s.db.QueryRowContext(ctx, query, jobID, currentEndpoint, completedEndpoints, recordsFetched).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("store: job %s is not running", jobID)
	}
	if err != nil {
		return err
	}

	r.s.redis.Del(ctx, jobCacheKey(tenantID))
	return nil
}

// MarkCompleted transitions running -> completed. Only legal once
// every planned endpoint has been fully paged.
func (r *JobRepository) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE sync_jobs
		SET status = 'completed', completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'running'
		RETURNING tenant_id
	`
	var tenantID uuid.UUID
	err := r.s.db.QueryRowContext(ctx, query, jobID).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("store: job %s is not running", jobID)
	}
	if err != nil {
		return err
	}

	r.s.redis.Del(ctx, jobCacheKey(tenantID))
	return nil
}

// MarkFailed finalizes an active job with an error message. Progress
// counters are frozen as-is, not rolled back. A job already finalized
// by another path is left untouched; the stale-job reaper and a
// finishing worker may race here, and the returned bool tells the
// caller whether this call was the one that transitioned the row.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID uuid.UUID, message string) (bool, error) {
	query := `
		UPDATE sync_jobs
		SET status = 'failed', completed_at = now(), error_message = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'running')
		RETURNING tenant_id
	`
	var tenantID uuid.UUID
	err := r.s.db.QueryRowContext(ctx, query, jobID, message).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	r.s.redis.Del(ctx, jobCacheKey(tenantID))
	return true, nil
}

const jobColumns = `id, tenant_id, status, started_at, completed_at,
	total_endpoints, completed_endpoints, current_endpoint,
	records_fetched, error_message, created_at, updated_at`

func scanJob(row *sql.Row) (*model.SyncJob, error) {
	job := &model.SyncJob{}
	err := row.Scan(
		&job.ID, &job.TenantID, &job.Status, &job.StartedAt, &job.CompletedAt,
		&job.TotalEndpoints, &job.CompletedEndpoints, &job.CurrentEndpoint,
		&job.RecordsFetched, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Latest returns the most recent job for the tenant in any state, or
// (nil, nil) when the tenant has never synced. This is the hot poll
// path, served cache-aside. Only terminal snapshots are written to the
// cache: a SetEx of an active snapshot could land after a concurrent
// progress write deleted the key, and every poller would then observe
// counters running backward until the next invalidation. Terminal jobs
// are immutable, so re-installing one is harmless.
func (r *JobRepository) Latest(ctx context.Context, tenantID uuid.UUID) (*model.SyncJob, error) {
	key := jobCacheKey(tenantID)
	if cached, err := r.s.redis.Get(ctx, key).Result(); err == nil {
		job := &model.SyncJob{}
		if err := json.Unmarshal([]byte(cached), job); err == nil {
			return job, nil
		}
	}

	query := `SELECT ` + jobColumns + `
		FROM sync_jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	job, err := scanJob(r.s.db.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if job.Terminal() {
		if data, err := json.Marshal(job); err == nil {
			r.s.redis.SetEx(ctx, key, data, jobCacheTTL)
		}
	}
	return job, nil
}

// History returns the tenant's most recent jobs, newest first.
func (r *JobRepository) History(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.SyncJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM sync_jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.s.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.SyncJob
	for rows.Next() {
		job := model.SyncJob{}
		err := rows.Scan(
			&job.ID, &job.TenantID, &job.Status, &job.StartedAt, &job.CompletedAt,
			&job.TotalEndpoints, &job.CompletedEndpoints, &job.CurrentEndpoint,
			&job.RecordsFetched, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
