package fsm

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached state label is trusted.
const DefaultCacheTTL = 300 * time.Second

// Cache stores the current state label of entities.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error
}

// CacheKey is the cache key of an entity's current state.
func CacheKey(entityType, entityID string) string {
	return "fsm:state:" + entityType + ":" + entityID
}

type cacheEntry struct {
	value   string
	expires time.Time
}

// MemoryCache is a process-local Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache. now may be nil.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}

	return &MemoryCache{entries: make(map[string]cacheEntry), now: now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}

	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)

		return "", false, nil
	}

	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = c.entry(value, ttl)

	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)

	return nil
}

func (c *MemoryCache) SetMany(_ context.Context, values map[string]string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.entries[k] = c.entry(v, ttl)
	}

	return nil
}

func (c *MemoryCache) entry(value string, ttl time.Duration) cacheEntry {
	e := cacheEntry{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	return e
}
