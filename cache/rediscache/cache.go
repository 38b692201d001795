// Package rediscache stores current entity states in Redis so every process
// sharing the database sees the same cached values.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache implements fsm.Cache on a Redis client.
type Cache struct {
	db     redis.UniversalClient
	prefix string
}

// New wraps client. Every key is prefixed with prefix, which may be empty.
func New(client redis.UniversalClient, prefix string) *Cache {
	return &Cache{db: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get returns ok=false for missing keys.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.db.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return val, true, nil
}

// Set stores value. A zero ttl means no expiration.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.db.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.db.Del(ctx, c.key(key)).Err()
}

// SetMany writes all values in one pipelined round trip.
func (c *Cache) SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	_, err := c.db.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, c.key(k), v, ttl)
		}

		return nil
	})

	return err
}

// Conn returns the underlying client.
func (c *Cache) Conn() redis.UniversalClient {
	return c.db
}
