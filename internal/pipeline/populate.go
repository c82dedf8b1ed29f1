// Package pipeline orchestrates resource discovery for approved disasters:
// load the disaster point, query the upstream amenity index, filter the
// candidates, persist, notify, and invalidate stale cache entries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/reliefmap/disaster-resource-service/internal/domain"
	"github.com/reliefmap/disaster-resource-service/internal/observability"
)

// MsgNoResources is returned when a population run finds nothing usable
// within the search radius.
const MsgNoResources = "No resources found in area."

// Store is the durable storage the pipeline reads disasters from and writes
// resources to.
type Store interface {
	DisasterPoint(ctx context.Context, disasterID string) (domain.Geo, error)
	InsertResources(ctx context.Context, resources []domain.Resource) error
	NearbyResources(ctx context.Context, disasterID string, lat, lon float64, radiusMeters int) ([]domain.Resource, error)
	DeleteResource(ctx context.Context, resourceID string) (string, error)
}

// ResourceQuerier fetches raw amenity elements around a point.
type ResourceQuerier interface {
	QueryNearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]domain.Element, error)
}

// Pipeline wires storage, cache, upstream client, and notifications.
type Pipeline struct {
	store    Store
	cache    domain.ResourceCache
	querier  ResourceQuerier
	notifier domain.Notifier
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	ttl          time.Duration
	radiusMeters int
}

// New creates a Pipeline. A nil clock falls back to the wall clock.
func New(store Store, cache domain.ResourceCache, querier ResourceQuerier, notifier domain.Notifier, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, ttl time.Duration, radiusMeters int) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = domain.DefaultCacheTTL
	}
	if radiusMeters <= 0 {
		radiusMeters = domain.DefaultRadiusMeters
	}
	return &Pipeline{
		store:        store,
		cache:        cache,
		querier:      querier,
		notifier:     notifier,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
		ttl:          ttl,
		radiusMeters: radiusMeters,
	}
}

// PopulateResult is the outcome of a population run. Exactly one of Inserted
// or Message carries meaning: Message is set when the area had no usable
// resources, otherwise Inserted holds the number of persisted rows.
type PopulateResult struct {
	Inserted int
	Message  string
}

// AutoPopulate discovers resources around the disaster's location and
// persists them. Persisted rows from earlier runs are kept; a new run only
// adds. Notification and cache invalidation happen only after a successful
// insert.
func (p *Pipeline) AutoPopulate(ctx context.Context, disasterID string) (PopulateResult, error) {
	point, err := p.store.DisasterPoint(ctx, disasterID)
	if err != nil {
		if errors.Is(err, domain.ErrDisasterNotFound) {
			p.metrics.PopulateRuns.WithLabelValues("not_found").Inc()
			return PopulateResult{}, err
		}
		p.metrics.PopulateRuns.WithLabelValues("store_error").Inc()
		return PopulateResult{}, fmt.Errorf("load disaster %s: %w", disasterID, err)
	}

	elements, err := p.querier.QueryNearby(ctx, point.Lat, point.Lon, p.radiusMeters)
	if err != nil {
		p.metrics.PopulateRuns.WithLabelValues("upstream_error").Inc()
		return PopulateResult{}, err
	}

	candidates := domain.CandidatesFromElements(disasterID, elements)
	filtered := domain.FilterCandidates(candidates)
	p.metrics.ResourcesFiltered.Add(float64(len(candidates) - len(filtered)))

	if len(filtered) == 0 {
		p.logger.Info("population found no resources", "disaster_id", disasterID, "elements", len(elements))
		p.metrics.PopulateRuns.WithLabelValues("empty").Inc()
		return PopulateResult{Message: MsgNoResources}, nil
	}

	if err := p.store.InsertResources(ctx, filtered); err != nil {
		p.metrics.PopulateRuns.WithLabelValues("persist_error").Inc()
		return PopulateResult{}, fmt.Errorf("persist resources: %w", err)
	}
	p.metrics.ResourcesPersisted.Add(float64(len(filtered)))

	p.notifyUpdated(ctx, disasterID, len(filtered))
	p.invalidate(ctx, disasterID)

	p.logger.Info("population complete",
		"disaster_id", disasterID,
		"inserted", len(filtered),
		"dropped", len(candidates)-len(filtered),
	)
	p.metrics.PopulateRuns.WithLabelValues("populated").Inc()
	return PopulateResult{Inserted: len(filtered)}, nil
}

// Delete removes one resource, then invalidates the owning disaster's cache
// entries and notifies listeners.
func (p *Pipeline) Delete(ctx context.Context, resourceID string) error {
	disasterID, err := p.store.DeleteResource(ctx, resourceID)
	if err != nil {
		return err
	}
	p.invalidate(ctx, disasterID)
	p.notifyUpdated(ctx, disasterID, 1)
	return nil
}

// notifyUpdated publishes resources_updated. Delivery failure is logged but
// never fails the surrounding operation; the durable state already changed.
func (p *Pipeline) notifyUpdated(ctx context.Context, disasterID string, count int) {
	event := domain.ResourceEvent{
		Event:      domain.EventResourcesUpdated,
		DisasterID: disasterID,
		Count:      count,
		EmittedAt:  p.clock.Now().UTC(),
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		p.logger.Warn("notify failed", "error", err, "disaster_id", disasterID)
		return
	}
	p.metrics.EventsPublished.Inc()
}

func (p *Pipeline) invalidate(ctx context.Context, disasterID string) {
	if err := p.cache.InvalidateAll(ctx, disasterID); err != nil {
		p.logger.Warn("cache invalidation failed", "error", err, "disaster_id", disasterID)
		return
	}
	p.metrics.CacheInvalidations.Inc()
}
