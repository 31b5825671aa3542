// Package cache holds Mimir's caching and Redis plumbing: the in-memory cache
// of compiled expressions and the Redis client factory used by document sources.
package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/mimir/internal/observability"
)

// MemoryCache is a bounded in-process cache on otter's contention-free S3-FIFO
// policy. Expression compilation is the main customer: compiled programs are
// immutable and safe to share.
type MemoryCache[V any] struct {
	store otter.Cache[string, V]
}

// NewMemoryCache builds a cache holding at most capacity entries, each living
// at most ttl since it was written.
func NewMemoryCache[V any](capacity int, ttl time.Duration) (*MemoryCache[V], error) {
	store, err := otter.MustBuilder[string, V](capacity).
		CollectStats().
		WithTTL(ttl).
		DeletionListener(func(_ string, _ V, cause otter.DeletionCause) {
			if cause == otter.Size || cause == otter.Expired {
				observability.ProgramCacheEvictions.Inc()
			}
		}).
		Build()
	if err != nil {
		return nil, err
	}
	return &MemoryCache[V]{store: store}, nil
}

// Get returns the value cached under key.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	v, ok := c.store.Get(key)
	if ok {
		observability.ProgramCacheHits.Inc()
	} else {
		observability.ProgramCacheMisses.Inc()
	}
	return v, ok
}

// Set stores v under key. It reports false if the write was dropped.
func (c *MemoryCache[V]) Set(key string, v V) bool {
	return c.store.Set(key, v)
}

// GetOrCompute returns the cached value for key or stores the result of compute.
// Errors are returned as is and never cached.
func (c *MemoryCache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	c.store.Set(key, v)
	return v, nil
}

// Del removes key.
func (c *MemoryCache[V]) Del(key string) {
	c.store.Delete(key)
}

// Clear drops every entry, e.g. after a new rule bundle replaced all keys.
func (c *MemoryCache[V]) Clear() {
	c.store.Clear()
}

// Len returns the number of entries currently held.
func (c *MemoryCache[V]) Len() int {
	return c.store.Size()
}

// RunMetricsCollector publishes the item count every interval until ctx is done.
func (c *MemoryCache[V]) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.ProgramCacheItems.Set(float64(c.store.Size()))
		}
	}
}

// Close stops otter's background goroutines.
func (c *MemoryCache[V]) Close() {
	c.store.Close()
}
