// Package cache stores ranked listing ID lists in Redis so repeated feed
// and page queries skip re-ranking.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/marketplace/internal/tracing"
)

// DefaultPrefix namespaces every key written by RedisCache.
const DefaultPrefix = "marketplace"

// DefaultTTL bounds how long a ranked list is served before it is recomputed.
const DefaultTTL = 5 * time.Minute

// RankCache stores ranked ID lists keyed by query shape.
type RankCache interface {
	// GetPage returns the cached IDs for key. ok is false on a miss.
	GetPage(ctx context.Context, key string) (ids []string, ok bool, err error)
	// SetPage stores ids under key for ttl.
	SetPage(ctx context.Context, key string, ids []string, ttl time.Duration) error
	// Invalidate makes every previously stored list unreachable.
	Invalidate(ctx context.Context) error
}

// RedisCache is a RankCache backed by Redis.
//
// Keys carry a generation number read from <prefix>:rank:gen. Invalidate
// bumps the generation, so older entries are never read again and age out
// through their TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a cache on top of client. An empty prefix uses DefaultPrefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) genKey() string {
	return c.prefix + ":rank:gen"
}

func (c *RedisCache) entryKey(gen int64, key string) string {
	return fmt.Sprintf("%s:rank:%d:%s", c.prefix, gen, key)
}

// Generation returns the current invalidation generation.
func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// GetPage returns the cached IDs for key.
func (c *RedisCache) GetPage(ctx context.Context, key string) (ids []string, ok bool, err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "get", key)
	defer func() { endSpan(err) }()

	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, false, err
	}

	data, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached ranking %q: %w", key, err)
	}

	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached ranking %q: %w", key, err)
	}
	return ids, true, nil
}

// SetPage stores ids under key. A non-positive ttl uses DefaultTTL.
func (c *RedisCache) SetPage(ctx context.Context, key string, ids []string, ttl time.Duration) (err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "set", key)
	defer func() { endSpan(err) }()

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ids == nil {
		ids = []string{}
	}

	gen, err := c.Generation(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode ranking %q: %w", key, err)
	}
	if err := c.client.Set(ctx, c.entryKey(gen, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache ranking %q: %w", key, err)
	}
	return nil
}

// Invalidate bumps the generation counter.
func (c *RedisCache) Invalidate(ctx context.Context) (err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "incr", c.genKey())
	defer func() { endSpan(err) }()

	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate ranking cache: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
