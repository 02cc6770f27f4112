// Package cache provides a small TTL cache with get-or-compute semantics and
// single-flight coalescing. The stream resolver and the cast device cache both
// build on it: entries expire lazily on access, and concurrent computations
// for the same key collapse into one underlying call.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a time-bounded key/value cache. The zero value is not usable; use New.
type TTL[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	group   singleflight.Group

	// now is swapped out in tests.
	now func() time.Time
}

// New creates a cache whose entries expire ttl after they were stored.
func New[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and unexpired. An expired
// entry is evicted on the spot.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key with a fresh timestamp, overwriting any
// previous entry.
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

// GetOrCompute returns the cached value for key, or runs compute to produce
// it. Concurrent callers for the same uncached key share one compute call and
// all receive its result (or its error). Errors are not cached.
func (c *TTL[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check: a concurrent caller may have stored the value between
		// our Get miss and acquiring the flight.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			var zero V
			return zero, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Invalidate removes key from the cache.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Touch refreshes key's timestamp, extending its lifetime. Reports whether
// the key was present and unexpired.
func (c *TTL[V]) Touch(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return false
	}
	e.storedAt = c.now()
	c.entries[key] = e
	return true
}

// Keys returns the keys of all unexpired entries, evicting expired ones.
func (c *TTL[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if c.now().Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of entries, including any not yet lazily evicted.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// SetClock overrides the cache's time source. Tests only.
func (c *TTL[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
