package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/FaithfulHarvest/planning-center-viz/internal/crypto"
	"github.com/FaithfulHarvest/planning-center-viz/internal/model"
	"github.com/FaithfulHarvest/planning-center-viz/internal/monitoring"
	"github.com/FaithfulHarvest/planning-center-viz/internal/pco"
	"github.com/FaithfulHarvest/planning-center-viz/internal/store"
)

// DefaultStaleWindow is how long an active job may go without a
// progress update before the status-read path treats it as abandoned.
const DefaultStaleWindow = 10 * time.Minute

const defaultHistoryLimit = 10

// TenantStore is the slice of the tenant store the engine consumes:
// read credentials and timezone, write new ciphertext and the
// last-refresh stamp. Identity resolution happens upstream.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	SaveCredentials(ctx context.Context, id uuid.UUID, appID string, ciphertext, nonce []byte) error
	SetLastRefresh(ctx context.Context, id uuid.UUID, at time.Time) error
}

// JobStore persists sync job lifecycle and progress. Implemented by
// store.JobRepository.
type JobStore interface {
	Create(ctx context.Context, tenantID uuid.UUID) (*model.SyncJob, error)
	MarkRunning(ctx context.Context, jobID uuid.UUID, totalEndpoints int) error
	UpdateProgress(ctx context.Context, jobID uuid.UUID, currentEndpoint string, completedEndpoints, recordsFetched int) error
	MarkCompleted(ctx context.Context, jobID uuid.UUID) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, message string) (bool, error)
	Latest(ctx context.Context, tenantID uuid.UUID) (*model.SyncJob, error)
	History(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.SyncJob, error)
}

// ProviderClient is satisfied by *pco.Client.
type ProviderClient interface {
	TestConnection(ctx context.Context) ([]string, error)
	FetchPage(ctx context.Context, res pco.Resource, cur pco.Cursor) (*pco.Page, error)
}

// ClientFactory builds a provider client from a decrypted credential
// pair. Tests substitute a scripted client.
type ClientFactory func(appID, secret string) ProviderClient

// CredentialCheck is the result of a dry-run credential validation.
type CredentialCheck struct {
	Success           bool
	Message           string
	AvailableServices []string
}

// Service is the refresh orchestrator. One refresh runs as one
// goroutine; tenants sync concurrently and independently, and the job
// slot in the job store is the only cross-request synchronization.
type Service struct {
	tenants    TenantStore
	jobs       JobStore
	reconciler *Reconciler
	vault      *crypto.Vault
	newClient  ClientFactory
	staleAfter time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClientFactory replaces how provider clients are constructed.
func WithClientFactory(f ClientFactory) ServiceOption {
	return func(s *Service) { s.newClient = f }
}

// WithStaleWindow overrides the staleness window.
func WithStaleWindow(d time.Duration) ServiceOption {
	return func(s *Service) { s.staleAfter = d }
}

func NewService(tenants TenantStore, jobs JobStore, records RecordStore, vault *crypto.Vault, opts ...ServiceOption) *Service {
	s := &Service{
		tenants:    tenants,
		jobs:       jobs,
		reconciler: NewReconciler(records),
		vault:      vault,
		newClient: func(appID, secret string) ProviderClient {
			return pco.New(appID, secret)
		},
		staleAfter: DefaultStaleWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartRefresh creates a new sync job for the tenant and runs it
// asynchronously, returning the pending job immediately. If the
// tenant already holds an active job, that job is returned along
// with store.ErrJobActive so the caller can report the winner.
//
// A tenant without configured credentials still gets a job; it fails
// immediately inside the worker with a credentials message, which is
// what the dashboard surfaces.
func (s *Service) StartRefresh(ctx context.Context, tenantID uuid.UUID) (*model.SyncJob, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}

	job, err := s.jobs.Create(ctx, tenantID)
	if errors.Is(err, store.ErrJobActive) {
		existing, lerr := s.jobs.Latest(ctx, tenantID)
		if lerr != nil || existing == nil {
			return nil, err
		}
		return existing, store.ErrJobActive
	}
	if err != nil {
		return nil, err
	}

	// The request context dies when the HTTP handler returns; the
	// job keeps its own.
	go s.runJob(context.Background(), tenant, job)

	return job, nil
}

// RefreshStatus returns the tenant's most recent job snapshot. An
// active job that has gone quiet past the staleness window is failed
// lazily here, so a crashed worker never blocks the next refresh.
func (s *Service) RefreshStatus(ctx context.Context, tenantID uuid.UUID) (*model.SyncJob, error) {
	job, err := s.jobs.Latest(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNoJobs
	}

	if job.Stale(s.staleAfter, time.Now()) {
		log.Warn().
			Str("tenant_id", tenantID.String()).
			Str("job_id", job.ID.String()).
			Time("last_update", job.UpdatedAt).
			Msg("Abandoning stale sync job")
		failed, err := s.jobs.MarkFailed(ctx, job.ID, "The sync worker stopped reporting progress. Please start a new refresh.")
		if err != nil {
			return nil, err
		}
		// A finishing worker may have beaten us to the transition; only
		// the caller that actually failed the row counts it.
		if failed {
			monitoring.SyncJobsTotal.WithLabelValues(string(model.JobFailed)).Inc()
		}
		return s.jobs.Latest(ctx, tenantID)
	}

	return job, nil
}

// RefreshHistory returns the tenant's most recent jobs, newest first.
func (s *Service) RefreshHistory(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.SyncJob, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.jobs.History(ctx, tenantID, limit)
}

// TestCredentials validates a credential pair against the provider
// without creating a job or touching stored credentials.
func (s *Service) TestCredentials(ctx context.Context, appID, secret string) (*CredentialCheck, error) {
	client := s.newClient(appID, secret)
	services, err := client.TestConnection(ctx)
	if err != nil {
		return &CredentialCheck{Success: false, Message: userMessage(err)}, nil
	}
	return &CredentialCheck{
		Success:           true,
		Message:           "Successfully connected to Planning Center.",
		AvailableServices: services,
	}, nil
}

// UpdateCredentials validates a credential pair, encrypts the secret,
// and stores the new ciphertext for the tenant.
func (s *Service) UpdateCredentials(ctx context.Context, tenantID uuid.UUID, appID, secret string) error {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return ErrTenantNotFound
	}

	client := s.newClient(appID, secret)
	if _, err := client.TestConnection(ctx); err != nil {
		return &CredentialsError{Reason: userMessage(err)}
	}

	ciphertext, nonce, err := s.vault.Encrypt(secret)
	if err != nil {
		return err
	}
	return s.tenants.SaveCredentials(ctx, tenantID, appID, ciphertext, nonce)
}

// runJob drives one refresh end to end and finalizes the job state.
func (s *Service) runJob(ctx context.Context, tenant *model.Tenant, job *model.SyncJob) {
	start := time.Now()
	logger := log.With().
		Str("tenant_id", tenant.ID.String()).
		Str("job_id", job.ID.String()).
		Logger()
	logger.Info().Msg("Starting data refresh")

	if err := s.execute(ctx, tenant, job); err != nil {
		msg := userMessage(err)
		logger.Error().Err(err).Msg("Data refresh failed")
		failed, ferr := s.jobs.MarkFailed(ctx, job.ID, msg)
		if ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to finalize job")
		}
		if failed {
			monitoring.SyncJobsTotal.WithLabelValues(string(model.JobFailed)).Inc()
			monitoring.Alert(msg, map[string]string{
				"tenant_id": tenant.ID.String(),
				"job_id":    job.ID.String(),
			})
		}
	} else {
		if err := s.tenants.SetLastRefresh(ctx, tenant.ID, time.Now().UTC()); err != nil {
			logger.Error().Err(err).Msg("Failed to stamp last refresh")
		}
		if err := s.jobs.MarkCompleted(ctx, job.ID); err != nil {
			logger.Error().Err(err).Msg("Failed to finalize job")
		}
		monitoring.SyncJobsTotal.WithLabelValues(string(model.JobCompleted)).Inc()
		logger.Info().Dur("elapsed", time.Since(start)).Msg("Data refresh completed")
	}

	monitoring.SyncDuration.Observe(time.Since(start).Seconds())
}

// execute performs the sync sequence: decrypt credentials, construct
// and test the provider client, then page through every resource in
// dependency order, reconciling each page and reporting progress at
// page boundaries. Data written before a failure stays put; partial
// syncs are visible and useful.
func (s *Service) execute(ctx context.Context, tenant *model.Tenant, job *model.SyncJob) error {
	if !tenant.HasCredentials() {
		return &CredentialsError{Reason: "Planning Center credentials are not configured. Please add your API credentials first."}
	}

	secret, err := s.vault.Decrypt(tenant.PCOSecretEncrypted, tenant.PCOSecretNonce)
	if err != nil {
		return &CredentialsError{Reason: "Stored Planning Center credentials could not be read. Please re-enter them."}
	}

	client := s.newClient(tenant.PCOAppID, secret)
	if _, err := client.TestConnection(ctx); err != nil {
		return err
	}

	loc, err := tenant.Location()
	if err != nil {
		return err
	}

	if err := s.jobs.MarkRunning(ctx, job.ID, len(pco.SyncOrder)); err != nil {
		return err
	}

	// records_fetched advances by page size at fetch time. A page
	// retried after a crash can over-count by one page; the stored
	// rows stay exact because reconciliation upserts.
	fetched := 0

	for i, res := range pco.SyncOrder {
		if err := s.jobs.UpdateProgress(ctx, job.ID, res.Name, i, fetched); err != nil {
			return err
		}

		cursor := pco.Cursor{}
		for {
			page, err := client.FetchPage(ctx, res, cursor)
			if err != nil {
				return err
			}
			monitoring.ProviderPagesFetched.WithLabelValues(res.Name).Inc()
			fetched += len(page.Records)

			if _, err := s.reconciler.Reconcile(ctx, tenant.ID, res, page, loc); err != nil {
				return err
			}
			if err := s.jobs.UpdateProgress(ctx, job.ID, res.Name, i, fetched); err != nil {
				return err
			}

			if page.Next == nil {
				break
			}
			cursor = *page.Next
		}

		if err := s.jobs.UpdateProgress(ctx, job.ID, res.Name, i+1, fetched); err != nil {
			return err
		}
	}

	return nil
}

// userMessage turns an error into the message surfaced on the failed
// job. Raw provider responses are never echoed to end users.
func userMessage(err error) string {
	var credErr *CredentialsError
	if errors.As(err, &credErr) {
		return credErr.Reason
	}
	var authErr *pco.AuthError
	if errors.As(err, &authErr) {
		return "Planning Center rejected the configured credentials. Please verify your App ID and Secret."
	}
	var rateErr *pco.RateLimitError
	if errors.As(err, &rateErr) {
		return "Planning Center is rate limiting requests and the retry budget ran out. Please try again later."
	}
	var apiErr *pco.APIError
	if errors.As(err, &apiErr) {
		return "Planning Center returned an unexpected response. Please try again later."
	}
	var transientErr *pco.TransientError
	if errors.As(err, &transientErr) {
		return "Planning Center could not be reached after several attempts. Please try again later."
	}
	return "Data refresh failed unexpectedly. Please try again."
}
