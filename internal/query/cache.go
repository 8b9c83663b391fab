package query

import (
	"context"
	"time"

	"github.com/JonMunkholm/shortages/internal/metrics"
	gocache "github.com/patrickmn/go-cache"
)

// Default cache timings.
const (
	DefaultCacheTTL     = 10 * time.Minute
	DefaultCacheCleanup = 20 * time.Minute
)

// Cache wraps go-cache with hit/miss accounting and explicit invalidation.
type Cache struct {
	store   *gocache.Cache
	metrics *metrics.Metrics
}

// NewCache creates a cache. ttl is the entry lifetime, cleanup how often
// expired entries are removed. m may be nil.
func NewCache(ttl, cleanup time.Duration, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cleanup <= 0 {
		cleanup = DefaultCacheCleanup
	}
	return &Cache{
		store:   gocache.New(ttl, cleanup),
		metrics: m,
	}
}

// Invalidate drops every cached result.
func (c *Cache) Invalidate() {
	c.store.Flush()
}

// ItemCount returns the number of cached results, expired ones included
// until the next cleanup.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// cached returns the value under key, loading and storing it on a miss.
// Errors are not cached.
func cached[T any](ctx context.Context, c *Cache, name, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.store.Get(key); ok {
		if typed, ok := v.(T); ok {
			c.metrics.ObserveCacheLookup(name, true)
			return typed, nil
		}
	}
	c.metrics.ObserveCacheLookup(name, false)

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.store.Set(key, v, gocache.DefaultExpiration)
	return v, nil
}
