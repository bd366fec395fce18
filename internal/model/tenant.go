package model

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents the tenants table. Each tenant is one church
// organization with its own Planning Center credential pair and an
// isolated set of analytical tables keyed by tenant id.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`

	// Planning Center credentials. The app id doubles as an identifier
	// and is stored in the clear; the secret is stored only encrypted,
	// with its GCM nonce in a separate column.
	PCOAppID           string `json:"-"`
	PCOSecretEncrypted []byte `json:"-"`
	PCOSecretNonce     []byte `json:"-"`

	// IANA timezone name used to normalize provider timestamps at
	// write time (e.g. "US/Central").
	DataTimezone string `json:"data_timezone"`

	LastDataRefresh *time.Time `json:"last_data_refresh,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// HasCredentials reports whether a credential pair has been configured.
func (t *Tenant) HasCredentials() bool {
	return t.PCOAppID != "" && len(t.PCOSecretEncrypted) > 0
}

// Location resolves the tenant's configured timezone.
func (t *Tenant) Location() (*time.Location, error) {
	return time.LoadLocation(t.DataTimezone)
}
