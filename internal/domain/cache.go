package domain

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Cache defaults. The radius matches the upstream query radius so a cache
// entry always describes the same area a population run covered.
const (
	DefaultCacheTTL     = time.Hour
	DefaultRadiusMeters = 10000
)

// ErrCacheMiss reports an absent or expired cache entry.
var ErrCacheMiss = errors.New("cache miss")

// CacheKey builds the composite key for a nearby-resource lookup.
// Coordinates use the shortest round-trip float form so equal coordinates
// always map to the same entry.
func CacheKey(disasterID string, lat, lon float64, radius int) string {
	return "resources:" + disasterID + ":" +
		strconv.FormatFloat(lat, 'f', -1, 64) + ":" +
		strconv.FormatFloat(lon, 'f', -1, 64) + ":" +
		strconv.Itoa(radius)
}

// CacheKeyPrefix is the prefix shared by every cache key of one disaster,
// the unit of bulk invalidation.
func CacheKeyPrefix(disasterID string) string {
	return "resources:" + disasterID + ":"
}

// ResourceCache stores nearby-resource lists with a TTL. Implementations
// must never serve an expired entry as a hit, but may leave expired entries
// in place for lazy cleanup.
type ResourceCache interface {
	// Get returns the cached list for key, or ErrCacheMiss when the entry is
	// absent or expired.
	Get(ctx context.Context, key string) ([]Resource, error)

	// Put overwrites the entry for key with expires_at = now + ttl.
	Put(ctx context.Context, key string, resources []Resource, ttl time.Duration) error

	// InvalidateAll removes every entry whose key references the disaster,
	// regardless of coordinate and radius suffix.
	InvalidateAll(ctx context.Context, disasterID string) error
}
