// Package cache implements a generic, thread-safe TTL cache.
//
// The cache shields the upstream APIs (Spotify, OpenWeatherMap, TV info)
// from redundant calls under request bursts and health-check polling.
// Call volume is home-use scale, so a single mutex over the whole map is
// enough; GetOrCompute deliberately runs the fetch outside the critical
// section so a slow upstream call never blocks unrelated reads.
package cache

import (
	"sync"
	"time"
)

// Observer receives cache hit/miss events for observability.
type Observer func(key string, hit bool)

// entry is a cached value with an absolute expiry.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// Cache is a generic, thread-safe key→value store with per-entry TTL.
// K must be comparable (map key constraint), V can be any type.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]entry[V]
	observer Observer
	now      func() time.Time // overridable for tests
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithObserver registers a hit/miss callback. Keys are stringified via fmt
// by the caller; the observer receives the raw key's string form only for
// string keys.
func WithObserver[K comparable, V any](obs Observer) Option[K, V] {
	return func(c *Cache[K, V]) { c.observer = obs }
}

// WithClock overrides the time source (tests only).
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) { c.now = now }
}

// New creates an empty TTL cache.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		items: make(map[K]entry[V]),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key unless the entry has expired.
// An expired entry is evicted and treated as absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	e, ok := c.items[key]
	if ok && e.expired(c.now()) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	c.observe(key, ok)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. Any existing entry is overwritten.
// ttl must be > 0; a non-positive ttl is ignored.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate evicts a single key. Used after state-mutating upstream calls
// so the next read is forced fresh.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// InvalidateAll evicts every entry.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	c.items = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// GetOrCompute returns the cached value for key, or calls fetch on a miss,
// stores the result for ttl and returns it. Fetch errors propagate without
// being cached.
//
// The fetch runs outside the lock: two concurrent misses may both fetch and
// the last write wins. No invariant depends on the fetch being exactly-once.
func (c *Cache[K, V]) GetOrCompute(key K, ttl time.Duration, fetch func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := fetch()
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, v, ttl)
	return v, nil
}

func (c *Cache[K, V]) observe(key K, hit bool) {
	if c.observer == nil {
		return
	}
	if s, ok := any(key).(string); ok {
		c.observer(s, hit)
		return
	}
	c.observer("", hit)
}
