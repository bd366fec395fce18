package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/FaithfulHarvest/planning-center-viz/internal/model"
)

// TenantRepository handles database operations for tenants. Tenant
// rows are deliberately not cached: the credential ciphertext must
// not sit in redis, and the sync path reads a tenant once per job.
type TenantRepository struct {
	s *Store
}

// Create inserts a new tenant.
func (r *TenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, subdomain, data_timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	tenant.ID = uuid.New()
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = tenant.CreatedAt
	if tenant.DataTimezone == "" {
		tenant.DataTimezone = "US/Central"
	}

	return r.s.db.QueryRowContext(ctx, query,
		tenant.ID, tenant.Name, tenant.Subdomain, tenant.DataTimezone,
		tenant.CreatedAt, tenant.UpdatedAt,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
}

// GetByID retrieves a tenant by ID. Returns (nil, nil) when no such
// tenant exists.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	query := `
		SELECT id, name, subdomain, pco_app_id, pco_secret_encrypted, pco_secret_nonce,
		       data_timezone, last_data_refresh, created_at, updated_at, deleted_at
		FROM tenants
		WHERE id = $1 AND deleted_at IS NULL
	`
	tenant := &model.Tenant{}
	err := r.s.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.Name, &tenant.Subdomain,
		&tenant.PCOAppID, &tenant.PCOSecretEncrypted, &tenant.PCOSecretNonce,
		&tenant.DataTimezone, &tenant.LastDataRefresh,
		&tenant.CreatedAt, &tenant.UpdatedAt, &tenant.DeletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// SaveCredentials stores a new credential pair. The secret arrives
// already encrypted; this repository never sees plaintext.
func (r *TenantRepository) SaveCredentials(ctx context.Context, id uuid.UUID, appID string, ciphertext, nonce []byte) error {
	query := `
		UPDATE tenants
		SET pco_app_id = $2, pco_secret_encrypted = $3, pco_secret_nonce = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.s.db.ExecContext(ctx, query, id, appID, ciphertext, nonce)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetLastRefresh stamps the tenant's last successful data refresh.
func (r *TenantRepository) SetLastRefresh(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE tenants
		SET last_data_refresh = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	_, err := r.s.db.ExecContext(ctx, query, id, at)
	return err
}
