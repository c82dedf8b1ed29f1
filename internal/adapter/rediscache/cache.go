// Package rediscache backs domain.ResourceCache with Redis, using native
// key TTLs instead of a stored expires_at column.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reliefmap/disaster-resource-service/internal/domain"
)

// Cache implements domain.ResourceCache on a Redis client.
type Cache struct {
	client *redis.Client
}

// New creates a Redis-backed cache.
func New(addr, password string, db int) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewWithClient wraps an existing client, for tests.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Ping verifies connectivity at startup.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Get(ctx context.Context, key string) ([]domain.Resource, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var resources []domain.Resource
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return resources, nil
}

func (c *Cache) Put(ctx context.Context, key string, resources []domain.Resource, ttl time.Duration) error {
	value, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// InvalidateAll scans for the disaster's key prefix and deletes matches in
// batches. SCAN keeps the operation incremental on large keyspaces.
func (c *Cache) InvalidateAll(ctx context.Context, disasterID string) error {
	pattern := globEscape(domain.CacheKeyPrefix(disasterID)) + "*"

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache invalidate: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache invalidate: %w", err)
		}
	}
	return nil
}

// globEscape guards SCAN MATCH metacharacters in key prefixes.
func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `\`, `\\`)
	return r.Replace(s)
}
