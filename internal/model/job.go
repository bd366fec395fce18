package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// SyncJob represents one data refresh attempt for a tenant. At most
// one job per tenant may be in a non-terminal state; the sync_jobs
// table enforces this with a partial unique index.
type SyncJob struct {
	ID       uuid.UUID `json:"job_id"`
	TenantID uuid.UUID `json:"tenant_id"`

	Status      JobStatus  `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalEndpoints     int    `json:"total_endpoints"`
	CompletedEndpoints int    `json:"completed_endpoints"`
	CurrentEndpoint    string `json:"current_endpoint,omitempty"`

	RecordsFetched int    `json:"records_fetched"`
	ErrorMessage   string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the job still holds the tenant's job slot.
func (j *SyncJob) Active() bool {
	return j.Status == JobPending || j.Status == JobRunning
}

// Terminal reports whether the job has reached a final state. Terminal
// jobs are immutable; a new refresh creates a new job.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Stale reports whether an active job has gone without a progress
// update for longer than the given window. Stale jobs are reconciled
// to failed lazily on the status-read path so a crashed worker cannot
// block the tenant from retrying.
func (j *SyncJob) Stale(window time.Duration, now time.Time) bool {
	return j.Active() && now.Sub(j.UpdatedAt) > window
}
