package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/reliefmap/disaster-resource-service/internal/domain"
	"github.com/reliefmap/disaster-resource-service/internal/observability"
	"github.com/reliefmap/disaster-resource-service/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct {
	point    domain.Geo
	pointErr error

	inserted  [][]domain.Resource
	insertErr error

	nearby      []domain.Resource
	nearbyErr   error
	nearbyCalls int

	deleteDisaster string
	deleteErr      error
}

func (m *mockStore) DisasterPoint(_ context.Context, _ string) (domain.Geo, error) {
	if m.pointErr != nil {
		return domain.Geo{}, m.pointErr
	}
	return m.point, nil
}

func (m *mockStore) InsertResources(_ context.Context, resources []domain.Resource) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, resources)
	return nil
}

func (m *mockStore) NearbyResources(_ context.Context, _ string, _, _ float64, _ int) ([]domain.Resource, error) {
	m.nearbyCalls++
	if m.nearbyErr != nil {
		return nil, m.nearbyErr
	}
	return m.nearby, nil
}

func (m *mockStore) DeleteResource(_ context.Context, _ string) (string, error) {
	if m.deleteErr != nil {
		return "", m.deleteErr
	}
	return m.deleteDisaster, nil
}

type putCall struct {
	key       string
	resources []domain.Resource
	ttl       time.Duration
}

type mockCache struct {
	entries map[string][]domain.Resource
	getErr  error

	puts          []putCall
	putErr        error
	invalidated   []string
	invalidateErr error
}

func (m *mockCache) Get(_ context.Context, key string) ([]domain.Resource, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if cached, ok := m.entries[key]; ok {
		return cached, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *mockCache) Put(_ context.Context, key string, resources []domain.Resource, ttl time.Duration) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts = append(m.puts, putCall{key: key, resources: resources, ttl: ttl})
	return nil
}

func (m *mockCache) InvalidateAll(_ context.Context, disasterID string) error {
	if m.invalidateErr != nil {
		return m.invalidateErr
	}
	m.invalidated = append(m.invalidated, disasterID)
	return nil
}

type mockQuerier struct {
	elements []domain.Element
	err      error
	calls    int
}

func (m *mockQuerier) QueryNearby(_ context.Context, _, _ float64, _ int) ([]domain.Element, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.elements, nil
}

type mockNotifier struct {
	events []domain.ResourceEvent
	err    error
}

func (m *mockNotifier) Notify(_ context.Context, event domain.ResourceEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

// --- fixtures ---

var fixedTime = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *mockStore
	cache    *mockCache
	querier  *mockQuerier
	notifier *mockNotifier
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
	pipeline *pipeline.Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &mockStore{point: domain.Geo{Lat: 30.2672, Lon: -97.7431}},
		cache:    &mockCache{entries: map[string][]domain.Resource{}},
		querier:  &mockQuerier{},
		notifier: &mockNotifier{},
		clock:    clockwork.NewFakeClockAt(fixedTime),
		metrics:  observability.NewMetricsForTesting(),
	}
	f.pipeline = pipeline.New(
		f.store, f.cache, f.querier, f.notifier, f.clock,
		slog.Default(), f.metrics,
		domain.DefaultCacheTTL, domain.DefaultRadiusMeters,
	)
	return f
}

func node(name, amenity string, lat, lon float64) domain.Element {
	tags := map[string]string{"amenity": amenity}
	if name != "" {
		tags["name"] = name
	}
	return domain.Element{Type: "node", Lat: lat, Lon: lon, Tags: tags}
}

// --- AutoPopulate ---

func TestAutoPopulate_PersistsFilteredResources(t *testing.T) {
	f := newFixture(t)
	f.querier.elements = []domain.Element{
		node("City Hospital", "hospital", 30.27, -97.74),
		node("city hospital", "hospital", 30.28, -97.75), // duplicate name
		node("Central Pharmacy", "pharmacy", 30.26, -97.73),
		node("Hospital", "hospital", 30.25, -97.72), // bare category label
	}

	result, err := f.pipeline.AutoPopulate(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Empty(t, result.Message)

	require.Len(t, f.store.inserted, 1)
	names := make([]string, 0, 2)
	for _, r := range f.store.inserted[0] {
		names = append(names, r.Name)
		assert.Equal(t, "d-1", r.DisasterID)
		assert.NotEmpty(t, r.ID)
	}
	assert.Empty(t, cmp.Diff([]string{"City Hospital", "Central Pharmacy"}, names))

	require.Len(t, f.notifier.events, 1)
	event := f.notifier.events[0]
	assert.Equal(t, domain.EventResourcesUpdated, event.Event)
	assert.Equal(t, "d-1", event.DisasterID)
	assert.Equal(t, 2, event.Count)
	assert.Equal(t, fixedTime, event.EmittedAt)

	assert.Equal(t, []string{"d-1"}, f.cache.invalidated)
}

func TestAutoPopulate_EmptyAreaReturnsMessage(t *testing.T) {
	f := newFixture(t)
	f.querier.elements = nil

	result, err := f.pipeline.AutoPopulate(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "No resources found in area.", result.Message)
	assert.Zero(t, result.Inserted)

	assert.Empty(t, f.store.inserted)
	assert.Empty(t, f.notifier.events)
	assert.Empty(t, f.cache.invalidated)
}

func TestAutoPopulate_AllCandidatesFilteredReturnsMessage(t *testing.T) {
	f := newFixture(t)
	// Every element is a bare category label, so nothing survives filtering.
	f.querier.elements = []domain.Element{
		node("Hospital", "hospital", 30.27, -97.74),
		node("shelter", "shelter", 30.26, -97.73),
	}

	result, err := f.pipeline.AutoPopulate(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "No resources found in area.", result.Message)
	assert.Empty(t, f.store.inserted)
}

func TestAutoPopulate_UpstreamFailureStopsPipeline(t *testing.T) {
	f := newFixture(t)
	f.querier.err = errors.New("failed to query OSM: status 504")

	_, err := f.pipeline.AutoPopulate(context.Background(), "d-1")
	require.Error(t, err)

	assert.Empty(t, f.store.inserted)
	assert.Empty(t, f.notifier.events)
	assert.Empty(t, f.cache.invalidated)
}

func TestAutoPopulate_PersistFailureSkipsNotifyAndInvalidate(t *testing.T) {
	f := newFixture(t)
	f.querier.elements = []domain.Element{node("City Hospital", "hospital", 30.27, -97.74)}
	f.store.insertErr = errors.New("connection reset")

	_, err := f.pipeline.AutoPopulate(context.Background(), "d-1")
	require.Error(t, err)

	assert.Empty(t, f.notifier.events)
	assert.Empty(t, f.cache.invalidated)
}

func TestAutoPopulate_UnknownDisaster(t *testing.T) {
	f := newFixture(t)
	f.store.pointErr = domain.ErrDisasterNotFound

	_, err := f.pipeline.AutoPopulate(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrDisasterNotFound)
	assert.Zero(t, f.querier.calls)
}

func TestAutoPopulate_StoreFailureIsNotCountedAsNotFound(t *testing.T) {
	f := newFixture(t)
	f.store.pointErr = errors.New("connection reset")

	_, err := f.pipeline.AutoPopulate(context.Background(), "d-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrDisasterNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PopulateRuns.WithLabelValues("store_error")))
	assert.Zero(t, testutil.ToFloat64(f.metrics.PopulateRuns.WithLabelValues("not_found")))

	f.store.pointErr = domain.ErrDisasterNotFound
	_, err = f.pipeline.AutoPopulate(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrDisasterNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PopulateRuns.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PopulateRuns.WithLabelValues("store_error")))
}

func TestAutoPopulate_NotifyFailureStillInvalidates(t *testing.T) {
	f := newFixture(t)
	f.querier.elements = []domain.Element{node("City Hospital", "hospital", 30.27, -97.74)}
	f.notifier.err = errors.New("broker unavailable")

	result, err := f.pipeline.AutoPopulate(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, []string{"d-1"}, f.cache.invalidated)
}

// --- Nearby ---

func TestNearby_CacheHit(t *testing.T) {
	f := newFixture(t)
	cached := []domain.Resource{{ID: "r-1", DisasterID: "d-1", Name: "City Hospital", Type: domain.TypeHospital}}
	key := domain.CacheKey("d-1", 30.2672, -97.7431, domain.DefaultRadiusMeters)
	f.cache.entries[key] = cached

	result, err := f.pipeline.Nearby(context.Background(), "d-1", 30.2672, -97.7431)
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Empty(t, cmp.Diff(cached, result.Resources))
	assert.Zero(t, f.store.nearbyCalls)
}

func TestNearby_CacheMissReadsStoreAndCaches(t *testing.T) {
	f := newFixture(t)
	f.store.nearby = []domain.Resource{
		{ID: "r-1", DisasterID: "d-1", Name: "City Hospital", Type: domain.TypeHospital},
		{ID: "r-2", DisasterID: "d-1", Name: "Central Pharmacy", Type: domain.TypePharmacy},
	}

	result, err := f.pipeline.Nearby(context.Background(), "d-1", 30.2672, -97.7431)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Len(t, result.Resources, 2)
	assert.Equal(t, 1, f.store.nearbyCalls)
	assert.Zero(t, f.querier.calls, "nearby lookups never query upstream")

	require.Len(t, f.cache.puts, 1)
	put := f.cache.puts[0]
	assert.Equal(t, domain.CacheKey("d-1", 30.2672, -97.7431, domain.DefaultRadiusMeters), put.key)
	assert.Equal(t, domain.DefaultCacheTTL, put.ttl)
	assert.Empty(t, cmp.Diff(f.store.nearby, put.resources))

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, 2, f.notifier.events[0].Count)
}

func TestNearby_UnpopulatedDisasterYieldsEmptyList(t *testing.T) {
	f := newFixture(t)
	f.store.nearby = nil

	result, err := f.pipeline.Nearby(context.Background(), "d-9", 30.2672, -97.7431)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Empty(t, result.Resources)
}

func TestNearby_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.nearbyErr = errors.New("connection reset")

	_, err := f.pipeline.Nearby(context.Background(), "d-1", 30.2672, -97.7431)
	require.Error(t, err)
	assert.Empty(t, f.cache.puts)
	assert.Empty(t, f.notifier.events)
}

func TestNearby_BrokenCacheDegradesToStore(t *testing.T) {
	f := newFixture(t)
	f.cache.getErr = errors.New("i/o timeout")
	f.store.nearby = []domain.Resource{{ID: "r-1", DisasterID: "d-1", Name: "City Hospital"}}

	result, err := f.pipeline.Nearby(context.Background(), "d-1", 30.2672, -97.7431)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Len(t, result.Resources, 1)
}

// --- Delete ---

func TestDelete_InvalidatesAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.store.deleteDisaster = "d-1"

	err := f.pipeline.Delete(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d-1"}, f.cache.invalidated)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "d-1", f.notifier.events[0].DisasterID)
}

func TestDelete_MissingResource(t *testing.T) {
	f := newFixture(t)
	f.store.deleteErr = errors.New("record not found")

	err := f.pipeline.Delete(context.Background(), "r-404")
	require.Error(t, err)
	assert.Empty(t, f.cache.invalidated)
	assert.Empty(t, f.notifier.events)
}
