package sync

import (
	"errors"
	"fmt"
)

// ErrTenantNotFound is returned when the supplied tenant id resolves
// to no tenant.
var ErrTenantNotFound = errors.New("sync: tenant not found")

// ErrNoJobs is returned by status and history reads for tenants that
// have never started a refresh.
var ErrNoJobs = errors.New("sync: no refresh jobs for tenant")

// CredentialsError means the tenant's credential pair is missing,
// cannot be decrypted, or was rejected while constructing the
// provider client. Terminal: the user must reconfigure credentials.
type CredentialsError struct {
	Reason string
}

func (e *CredentialsError) Error() string {
	return "sync: " + e.Reason
}

// ReconciliationError marks one malformed provider record. It is
// logged and the record skipped; it never aborts the job.
type ReconciliationError struct {
	Resource string
	RecordID string
	Reason   string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("sync: %s record %q: %s", e.Resource, e.RecordID, e.Reason)
}
