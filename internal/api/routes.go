// Package api provides the REST handlers for the data refresh engine.
// Tenant identity arrives pre-resolved in the X-Tenant-ID header; the
// engine trusts the upstream auth layer and never authenticates users.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/FaithfulHarvest/planning-center-viz/internal/model"
	"github.com/FaithfulHarvest/planning-center-viz/internal/store"
	syncsvc "github.com/FaithfulHarvest/planning-center-viz/internal/sync"
)

// SyncService is the engine surface the HTTP layer depends on.
// Implemented by *sync.Service.
type SyncService interface {
	StartRefresh(ctx context.Context, tenantID uuid.UUID) (*model.SyncJob, error)
	RefreshStatus(ctx context.Context, tenantID uuid.UUID) (*model.SyncJob, error)
	RefreshHistory(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.SyncJob, error)
	TestCredentials(ctx context.Context, appID, secret string) (*syncsvc.CredentialCheck, error)
	UpdateCredentials(ctx context.Context, tenantID uuid.UUID, appID, secret string) error
}

// RefreshStartResponse is returned by POST /api/v1/data/refresh. On a
// 409 it carries the job id of the refresh already in flight.
type RefreshStartResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

// CredentialsRequest carries a Planning Center credential pair. The
// secret is accepted here, used, and never echoed back or logged.
type CredentialsRequest struct {
	AppID  string `json:"pco_app_id"`
	Secret string `json:"pco_secret"`
}

// CredentialsTestResponse is returned by the test-credentials and
// credentials endpoints.
type CredentialsTestResponse struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
	ServicesAvailable []string `json:"services_available,omitempty"`
}

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the engine's REST routes with dependency injection.
type Routes struct {
	service SyncService
}

// NewRoutes creates a new Routes instance with the provided service.
func NewRoutes(svc SyncService) *Routes {
	return &Routes{service: svc}
}

// Router assembles the full HTTP surface: health and metrics beside
// the tenant-scoped v1 API.
func Router(svc SyncService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(TenantID)

		r.Route("/data/refresh", func(r chi.Router) {
			r.Post("/", routes.startRefresh)
			r.Get("/status", routes.refreshStatus)
			r.Get("/history", routes.refreshHistory)
		})
		r.Route("/tenant", func(r chi.Router) {
			r.Post("/test-credentials", routes.testCredentials)
			r.Put("/credentials", routes.updateCredentials)
		})
	})

	return r
}

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// TenantID extracts and validates the X-Tenant-ID header set by the
// upstream auth layer.
func TenantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Tenant-ID")
		if raw == "" {
			writeErrorResponse(w, "Missing X-Tenant-ID header", http.StatusUnauthorized)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			writeErrorResponse(w, "Invalid tenant id", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantIDKey, id)))
	})
}

func tenantFromContext(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(tenantIDKey).(uuid.UUID)
	return id
}

// startRefresh handles POST /api/v1/data/refresh.
func (rr *Routes) startRefresh(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromContext(r)

	job, err := rr.service.StartRefresh(r.Context(), tenantID)
	switch {
	case errors.Is(err, store.ErrJobActive) && job != nil:
		writeJSONResponse(w, http.StatusConflict, RefreshStartResponse{
			JobID:   job.ID,
			Status:  string(job.Status),
			Message: "A data refresh is already in progress for this tenant.",
		})
	case errors.Is(err, syncsvc.ErrTenantNotFound):
		writeErrorResponse(w, "Tenant not found", http.StatusNotFound)
	case err != nil:
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to start refresh")
		writeErrorResponse(w, "Failed to start data refresh", http.StatusInternalServerError)
	default:
		writeJSONResponse(w, http.StatusAccepted, RefreshStartResponse{
			JobID:   job.ID,
			Status:  string(job.Status),
			Message: "Data refresh started.",
		})
	}
}

// refreshStatus handles GET /api/v1/data/refresh/status.
func (rr *Routes) refreshStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromContext(r)

	job, err := rr.service.RefreshStatus(r.Context(), tenantID)
	switch {
	case errors.Is(err, syncsvc.ErrNoJobs):
		writeErrorResponse(w, "No data refresh has been run for this tenant", http.StatusNotFound)
	case err != nil:
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to read refresh status")
		writeErrorResponse(w, "Failed to read refresh status", http.StatusInternalServerError)
	default:
		writeJSONResponse(w, http.StatusOK, job)
	}
}

// refreshHistory handles GET /api/v1/data/refresh/history.
func (rr *Routes) refreshHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromContext(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErrorResponse(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := rr.service.RefreshHistory(r.Context(), tenantID, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to read refresh history")
		writeErrorResponse(w, "Failed to read refresh history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []model.SyncJob{}
	}
	writeJSONResponse(w, http.StatusOK, history)
}

// testCredentials handles POST /api/v1/tenant/test-credentials.
func (rr *Routes) testCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppID == "" || req.Secret == "" {
		writeErrorResponse(w, "pco_app_id and pco_secret are required", http.StatusBadRequest)
		return
	}

	check, err := rr.service.TestCredentials(r.Context(), req.AppID, req.Secret)
	if err != nil {
		log.Error().Err(err).Msg("Credential test failed")
		writeErrorResponse(w, "Failed to test credentials", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, CredentialsTestResponse{
		Success:           check.Success,
		Message:           check.Message,
		ServicesAvailable: check.AvailableServices,
	})
}

// updateCredentials handles PUT /api/v1/tenant/credentials.
func (rr *Routes) updateCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromContext(r)

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppID == "" || req.Secret == "" {
		writeErrorResponse(w, "pco_app_id and pco_secret are required", http.StatusBadRequest)
		return
	}

	err := rr.service.UpdateCredentials(r.Context(), tenantID, req.AppID, req.Secret)
	var credErr *syncsvc.CredentialsError
	switch {
	case errors.Is(err, syncsvc.ErrTenantNotFound):
		writeErrorResponse(w, "Tenant not found", http.StatusNotFound)
	case errors.As(err, &credErr):
		writeJSONResponse(w, http.StatusUnprocessableEntity, CredentialsTestResponse{
			Success: false,
			Message: credErr.Reason,
		})
	case err != nil:
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to update credentials")
		writeErrorResponse(w, "Failed to update credentials", http.StatusInternalServerError)
	default:
		writeJSONResponse(w, http.StatusOK, CredentialsTestResponse{
			Success: true,
			Message: "Credentials updated.",
		})
	}
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// writeJSONResponse writes a JSON response with the given data.
func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes a standardized error response.
func writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}
