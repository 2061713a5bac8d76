// Package cache is a thin Redis-backed get/set-with-TTL wrapper used to
// cache LLM responses and evaluation results, and to invalidate the
// derived caches an evaluation touches.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learntrac/backend/apperr"
)

// Cache is a Redis-backed key/value store for JSON-serializable artifacts.
type Cache struct {
	client *redis.Client
}

func New(addr, password string, db int) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping checks Redis connectivity, for the /health aggregator.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return apperr.Dependency("redis ping", err)
	}
	return nil
}

// Get decodes the JSON stored at key into dest. It returns (false, nil) on
// a cache miss rather than an error.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Dependency("redis get", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, apperr.Internal("decode cached value", err)
	}
	return true, nil
}

// Set JSON-encodes value and stores it at key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apperr.Internal("encode value for cache", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return apperr.Dependency("redis set", err)
	}
	return nil
}

// Delete removes the given keys, ignoring keys that don't exist.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return apperr.Dependency("redis delete", err)
	}
	return nil
}
