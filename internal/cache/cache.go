// Package cache stores short-lived prediction results keyed by image digest.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache abstracts the key/value operations the prediction cache needs.
type Cache interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return value, err
}

// MemoryCache keeps entries in process memory.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates an in-memory cache purging expired items every cleanup interval.
func NewMemoryCache(defaultExpiration, cleanup time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(defaultExpiration, cleanup)}
}

// Set stores value until expiration elapses.
func (c *MemoryCache) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	c.items.Set(key, value, expiration)
	return nil
}

// Get returns the value stored under key.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	if x, found := c.items.Get(key); found {
		return x.(string), nil
	}
	return "", ErrMiss
}
