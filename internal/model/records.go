package model

import (
	"time"

	"github.com/google/uuid"
)

// Analytical records mirror the Planning Center resources the
// dashboard charts aggregate over. Every row carries the owning
// tenant id plus the provider-assigned natural key; (tenant_id,
// natural key) is the upsert identity. Timestamps are stored as the
// tenant's local wall clock, normalized at write time.

// Person represents the pc_people table.
type Person struct {
	TenantID uuid.UUID
	PersonID string // provider natural key

	FirstName        string
	LastName         string
	Gender           string
	Birthdate        *time.Time
	Child            bool
	MembershipStatus string

	CreatedAtLocal *time.Time
	UpdatedAtLocal *time.Time
	LoadTimestamp  time.Time
}

// Event represents the pc_events table.
type Event struct {
	TenantID uuid.UUID
	EventID  string // provider natural key

	Name      string
	Frequency string

	CreatedAtLocal *time.Time
	UpdatedAtLocal *time.Time
	LoadTimestamp  time.Time
}

// CheckIn represents the pc_checkins table. Person demographics are
// denormalized onto the row from the provider's included person data
// so the chart endpoints can bucket age and gender at read time
// without joining pc_people.
type CheckIn struct {
	TenantID  uuid.UUID
	CheckInID string // provider natural key

	PersonID    string
	EventID     string
	EventTimeID string
	Kind        string

	CheckedInAt   *time.Time // tenant-local wall clock
	CheckedInDate string     // derived, YYYY-MM-DD
	CheckedInTime string     // derived, HH:MM:SS

	PersonGender    string
	PersonBirthdate *time.Time

	LoadTimestamp time.Time
}
