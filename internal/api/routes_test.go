package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FaithfulHarvest/planning-center-viz/internal/model"
	"github.com/FaithfulHarvest/planning-center-viz/internal/store"
	syncsvc "github.com/FaithfulHarvest/planning-center-viz/internal/sync"
)

type mockService struct {
	startJob   *model.SyncJob
	startErr   error
	statusJob  *model.SyncJob
	statusErr  error
	history    []model.SyncJob
	historyErr error
	gotLimit   int
	check      *syncsvc.CredentialCheck
	updateErr  error
	gotAppID   string
	gotSecret  string
}

func (m *mockService) StartRefresh(_ context.Context, _ uuid.UUID) (*model.SyncJob, error) {
	return m.startJob, m.startErr
}

func (m *mockService) RefreshStatus(_ context.Context, _ uuid.UUID) (*model.SyncJob, error) {
	return m.statusJob, m.statusErr
}

func (m *mockService) RefreshHistory(_ context.Context, _ uuid.UUID, limit int) ([]model.SyncJob, error) {
	m.gotLimit = limit
	return m.history, m.historyErr
}

func (m *mockService) TestCredentials(_ context.Context, appID, secret string) (*syncsvc.CredentialCheck, error) {
	m.gotAppID, m.gotSecret = appID, secret
	return m.check, nil
}

func (m *mockService) UpdateCredentials(_ context.Context, _ uuid.UUID, appID, secret string) error {
	m.gotAppID, m.gotSecret = appID, secret
	return m.updateErr
}

func doRequest(handler http.Handler, method, path, tenantID string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func pendingJob(tenantID uuid.UUID) *model.SyncJob {
	now := time.Now().UTC()
	return &model.SyncJob{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Status:    model.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMissingTenantHeader(t *testing.T) {
	router := Router(&mockService{})
	rec := doRequest(router, http.MethodPost, "/api/v1/data/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidTenantHeader(t *testing.T) {
	router := Router(&mockService{})
	rec := doRequest(router, http.MethodGet, "/api/v1/data/refresh/status", "not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRefreshAccepted(t *testing.T) {
	tenantID := uuid.New()
	job := pendingJob(tenantID)
	router := Router(&mockService{startJob: job})

	rec := doRequest(router, http.MethodPost, "/api/v1/data/refresh", tenantID.String(), nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp RefreshStartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, job.ID, resp.JobID)
	assert.Equal(t, "pending", resp.Status)
}

func TestStartRefreshConflict(t *testing.T) {
	tenantID := uuid.New()
	winner := pendingJob(tenantID)
	winner.Status = model.JobRunning
	router := Router(&mockService{startJob: winner, startErr: store.ErrJobActive})

	rec := doRequest(router, http.MethodPost, "/api/v1/data/refresh", tenantID.String(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp RefreshStartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, winner.ID, resp.JobID)
	assert.Equal(t, "running", resp.Status)
}

func TestStartRefreshUnknownTenant(t *testing.T) {
	router := Router(&mockService{startErr: syncsvc.ErrTenantNotFound})
	rec := doRequest(router, http.MethodPost, "/api/v1/data/refresh", uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshStatus(t *testing.T) {
	tenantID := uuid.New()
	job := pendingJob(tenantID)
	job.Status = model.JobRunning
	job.TotalEndpoints = 3
	job.CompletedEndpoints = 1
	job.CurrentEndpoint = "events"
	job.RecordsFetched = 250
	router := Router(&mockService{statusJob: job})

	rec := doRequest(router, http.MethodGet, "/api/v1/data/refresh/status", tenantID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp model.SyncJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.JobRunning, resp.Status)
	assert.Equal(t, "events", resp.CurrentEndpoint)
	assert.Equal(t, 250, resp.RecordsFetched)
}

func TestRefreshStatusNoJobs(t *testing.T) {
	router := Router(&mockService{statusErr: syncsvc.ErrNoJobs})
	rec := doRequest(router, http.MethodGet, "/api/v1/data/refresh/status", uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshHistory(t *testing.T) {
	tenantID := uuid.New()
	svc := &mockService{history: []model.SyncJob{*pendingJob(tenantID), *pendingJob(tenantID)}}
	router := Router(svc)

	rec := doRequest(router, http.MethodGet, "/api/v1/data/refresh/history?limit=5", tenantID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.gotLimit)

	var resp []model.SyncJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestRefreshHistoryInvalidLimit(t *testing.T) {
	router := Router(&mockService{})
	rec := doRequest(router, http.MethodGet, "/api/v1/data/refresh/history?limit=abc", uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshHistoryEmpty(t *testing.T) {
	router := Router(&mockService{})
	rec := doRequest(router, http.MethodGet, "/api/v1/data/refresh/history", uuid.NewString(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestTestCredentials(t *testing.T) {
	svc := &mockService{check: &syncsvc.CredentialCheck{
		Success:           true,
		Message:           "Successfully connected to Planning Center.",
		AvailableServices: []string{"people", "check-ins"},
	}}
	router := Router(svc)

	body, _ := json.Marshal(CredentialsRequest{AppID: "app", Secret: "secret"})
	rec := doRequest(router, http.MethodPost, "/api/v1/tenant/test-credentials", uuid.NewString(), body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "app", svc.gotAppID)

	var resp CredentialsTestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"people", "check-ins"}, resp.ServicesAvailable)
}

func TestTestCredentialsMissingFields(t *testing.T) {
	router := Router(&mockService{})
	body := []byte(`{"pco_app_id":"app"}`)
	rec := doRequest(router, http.MethodPost, "/api/v1/tenant/test-credentials", uuid.NewString(), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCredentials(t *testing.T) {
	svc := &mockService{}
	router := Router(svc)

	body, _ := json.Marshal(CredentialsRequest{AppID: "app", Secret: "secret"})
	rec := doRequest(router, http.MethodPut, "/api/v1/tenant/credentials", uuid.NewString(), body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secret", svc.gotSecret)
}

func TestUpdateCredentialsRejected(t *testing.T) {
	svc := &mockService{updateErr: &syncsvc.CredentialsError{Reason: "Planning Center rejected the configured credentials."}}
	router := Router(svc)

	body, _ := json.Marshal(CredentialsRequest{AppID: "app", Secret: "bad"})
	rec := doRequest(router, http.MethodPut, "/api/v1/tenant/credentials", uuid.NewString(), body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp CredentialsTestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestHealth(t *testing.T) {
	router := Router(&mockService{})
	rec := doRequest(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
