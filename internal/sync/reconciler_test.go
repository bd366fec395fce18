package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FaithfulHarvest/planning-center-viz/internal/model"
	"github.com/FaithfulHarvest/planning-center-viz/internal/pco"
)

// memoryRecordStore keys records by natural key, mirroring the upsert
// semantics of the real repository.
type memoryRecordStore struct {
	people   map[string]model.Person
	events   map[string]model.Event
	checkIns map[string]model.CheckIn
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{
		people:   make(map[string]model.Person),
		events:   make(map[string]model.Event),
		checkIns: make(map[string]model.CheckIn),
	}
}

func (m *memoryRecordStore) UpsertPeople(_ context.Context, _ uuid.UUID, people []model.Person) (int, error) {
	for _, p := range people {
		m.people[p.PersonID] = p
	}
	return len(people), nil
}

func (m *memoryRecordStore) UpsertEvents(_ context.Context, _ uuid.UUID, events []model.Event) (int, error) {
	for _, e := range events {
		m.events[e.EventID] = e
	}
	return len(events), nil
}

func (m *memoryRecordStore) UpsertCheckIns(_ context.Context, _ uuid.UUID, checkIns []model.CheckIn) (int, error) {
	for _, c := range checkIns {
		m.checkIns[c.CheckInID] = c
	}
	return len(checkIns), nil
}

func centralTime(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("US/Central")
	require.NoError(t, err)
	return loc
}

func TestReconcilePeople(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store)
	tenantID := uuid.New()

	page := &pco.Page{
		Records: []pco.Record{
			{
				ID:   "p1",
				Type: "Person",
				Attributes: map[string]any{
					"first_name": "Ada",
					"last_name":  "Lovelace",
					"gender":     "Female",
					"birthdate":  "1990-12-10",
					"child":      false,
					"status":     "active",
					"created_at": "2024-01-12T09:00:00Z",
					"updated_at": "2024-02-01T15:30:00Z",
				},
			},
		},
	}

	written, err := r.Reconcile(context.Background(), tenantID, pco.People, page, centralTime(t))
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	p, ok := store.people["p1"]
	require.True(t, ok)
	assert.Equal(t, tenantID, p.TenantID)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)
	assert.Equal(t, "active", p.MembershipStatus)
	require.NotNil(t, p.Birthdate)
	assert.Equal(t, "1990-12-10", p.Birthdate.Format("2006-01-02"))
}

func TestReconcileNormalizesToTenantWallClock(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store)
	loc := centralTime(t)

	page := &pco.Page{
		Records: []pco.Record{
			{
				ID:   "c1",
				Type: "CheckIn",
				Attributes: map[string]any{
					// CST: UTC-6
					"created_at": "2024-01-12T09:00:00Z",
				},
			},
			{
				ID:   "c2",
				Type: "CheckIn",
				Attributes: map[string]any{
					// CDT after the March 10 spring-forward: UTC-5
					"created_at": "2024-03-10T09:00:00Z",
				},
			},
		},
	}

	_, err := r.Reconcile(context.Background(), uuid.New(), pco.CheckIns, page, loc)
	require.NoError(t, err)

	winter := store.checkIns["c1"]
	assert.Equal(t, "2024-01-12", winter.CheckedInDate)
	assert.Equal(t, "03:00:00", winter.CheckedInTime)

	spring := store.checkIns["c2"]
	assert.Equal(t, "2024-03-10", spring.CheckedInDate)
	assert.Equal(t, "04:00:00", spring.CheckedInTime)
}

func TestReconcileCheckInDemographics(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store)

	personRef := pco.Ref{ID: "p7", Type: "Person"}
	page := &pco.Page{
		Records: []pco.Record{
			{
				ID:   "c9",
				Type: "CheckIn",
				Attributes: map[string]any{
					"created_at": "2024-06-02T14:05:00Z",
					"kind":       "Regular",
				},
				Relationships: map[string][]pco.Ref{
					"person":      {personRef},
					"event":       {{ID: "e3", Type: "Event"}},
					"event_times": {{ID: "et1", Type: "EventTime"}},
				},
			},
		},
		Included: map[string]pco.Record{},
	}
	page.Included["p7|Person"] = pco.Record{
		ID:   "p7",
		Type: "Person",
		Attributes: map[string]any{
			"gender":    "Male",
			"birthdate": "2016-04-20",
		},
	}

	_, err := r.Reconcile(context.Background(), uuid.New(), pco.CheckIns, page, centralTime(t))
	require.NoError(t, err)

	c := store.checkIns["c9"]
	assert.Equal(t, "p7", c.PersonID)
	assert.Equal(t, "e3", c.EventID)
	assert.Equal(t, "et1", c.EventTimeID)
	assert.Equal(t, "Male", c.PersonGender)
	require.NotNil(t, c.PersonBirthdate)
	assert.Equal(t, "2016-04-20", c.PersonBirthdate.Format("2006-01-02"))
}

func TestReconcileSkipsMalformedRecords(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store)

	page := &pco.Page{
		Records: []pco.Record{
			{ID: "", Type: "CheckIn", Attributes: map[string]any{"created_at": "2024-06-02T14:05:00Z"}},
			{ID: "c-no-ts", Type: "CheckIn", Attributes: map[string]any{"kind": "Guest"}},
			{ID: "c-good", Type: "CheckIn", Attributes: map[string]any{"created_at": "2024-06-02T14:05:00Z"}},
		},
	}

	written, err := r.Reconcile(context.Background(), uuid.New(), pco.CheckIns, page, centralTime(t))
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Len(t, store.checkIns, 1)
	assert.Contains(t, store.checkIns, "c-good")
}

func TestReconcileIdempotent(t *testing.T) {
	store := newMemoryRecordStore()
	r := NewReconciler(store)
	tenantID := uuid.New()
	loc := centralTime(t)

	page := &pco.Page{
		Records: []pco.Record{
			{ID: "e1", Type: "Event", Attributes: map[string]any{"name": "Sunday Service", "frequency": "Weekly"}},
			{ID: "e2", Type: "Event", Attributes: map[string]any{"name": "Youth Group"}},
		},
	}

	_, err := r.Reconcile(context.Background(), tenantID, pco.Events, page, loc)
	require.NoError(t, err)

	// Same page replayed, one record mutated upstream.
	page.Records[1].Attributes["name"] = "Youth Night"
	_, err = r.Reconcile(context.Background(), tenantID, pco.Events, page, loc)
	require.NoError(t, err)

	assert.Len(t, store.events, 2)
	assert.Equal(t, "Sunday Service", store.events["e1"].Name)
	assert.Equal(t, "Youth Night", store.events["e2"].Name)
}

func TestReconcileUnknownResource(t *testing.T) {
	r := NewReconciler(newMemoryRecordStore())
	_, err := r.Reconcile(context.Background(), uuid.New(), pco.Resource{Name: "donations"}, &pco.Page{}, time.UTC)
	assert.Error(t, err)
}
