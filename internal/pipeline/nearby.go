package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/reliefmap/disaster-resource-service/internal/domain"
)

// NearbyResult carries a nearby lookup's resources and whether they were
// served from cache.
type NearbyResult struct {
	Resources []domain.Resource
	Cached    bool
}

// Nearby returns persisted resources within the default radius of a point,
// serving from cache when a fresh entry exists. This path never queries the
// upstream index; an unpopulated disaster simply yields an empty list.
func (p *Pipeline) Nearby(ctx context.Context, disasterID string, lat, lon float64) (NearbyResult, error) {
	timer := p.clock.Now()
	defer func() {
		p.metrics.NearbyDuration.Observe(p.clock.Since(timer).Seconds())
	}()

	key := domain.CacheKey(disasterID, lat, lon, p.radiusMeters)

	cached, err := p.cache.Get(ctx, key)
	if err == nil {
		p.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return NearbyResult{Resources: cached, Cached: true}, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		// A broken cache degrades to a store read.
		p.logger.Warn("cache read failed", "error", err, "key", key)
	}
	p.metrics.CacheLookups.WithLabelValues("miss").Inc()

	resources, err := p.store.NearbyResources(ctx, disasterID, lat, lon, p.radiusMeters)
	if err != nil {
		return NearbyResult{}, fmt.Errorf("nearby resources: %w", err)
	}

	if err := p.cache.Put(ctx, key, resources, p.ttl); err != nil {
		p.logger.Warn("cache write failed", "error", err, "key", key)
	}
	p.notifyUpdated(ctx, disasterID, len(resources))

	return NearbyResult{Resources: resources}, nil
}
