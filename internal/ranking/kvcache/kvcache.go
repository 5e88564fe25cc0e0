// Package kvcache is the KVCache primitive (spec §4 Components): key->JSON
// with TTL, used for catalog hot reads (Product/Brand hydration during
// ranking queries) so repeated top-K lookups don't all hit Postgres.
package kvcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Get unmarshals the cached value for key into dest; returns (false, nil)
// on a cache miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("kvcache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("kvcache unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Set marshals value as JSON and stores it under key with ttl.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvcache marshal %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("kvcache set %s: %w", key, err)
	}
	return nil
}

// Evict removes key, used when the underlying row changes before its TTL
// naturally expires.
func (c *Cache) Evict(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kvcache evict %s: %w", key, err)
	}
	return nil
}
