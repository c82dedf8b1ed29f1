package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/reliefmap/disaster-resource-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cache implements domain.ResourceCache on the resource_cache table.
// Expiry is checked on read against an injected clock; expired rows are left
// in place until the next overwrite or invalidation.
type Cache struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// NewCache builds a DB-backed cache. Pass nil to use the real clock.
func NewCache(store *Store, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{db: store.db, clock: clock}
}

func (c *Cache) Get(ctx context.Context, key string) ([]domain.Resource, error) {
	var row cacheRow
	err := c.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if expired(row.ExpiresAt, c.clock.Now()) {
		return nil, domain.ErrCacheMiss
	}

	var resources []domain.Resource
	if err := json.Unmarshal(row.Value, &resources); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return resources, nil
}

func (c *Cache) Put(ctx context.Context, key string, resources []domain.Resource, ttl time.Duration) error {
	value, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	row := cacheRow{
		Key:       key,
		Value:     value,
		ExpiresAt: c.clock.Now().Add(ttl),
	}
	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (c *Cache) InvalidateAll(ctx context.Context, disasterID string) error {
	prefix := domain.CacheKeyPrefix(disasterID)
	err := c.db.WithContext(ctx).
		Where("key LIKE ?", likeEscape(prefix)+"%").
		Delete(&cacheRow{}).Error
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// expired reports whether an entry is stale. Expiry is exclusive: an entry
// whose expires_at equals now is already a miss.
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.After(now)
}

// likeEscape guards LIKE metacharacters in cache key prefixes; disaster ids
// are uuids in practice but the key format does not enforce that.
func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
