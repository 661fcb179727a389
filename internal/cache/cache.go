// Package cache provides a bounded in-memory TTL cache for upstream fetch
// results. Eviction is insertion-ordered (FIFO): when the cache is full the
// oldest inserted entry is dropped, which approximates LRU closely enough for
// short-TTL fetch caching without per-read bookkeeping.
package cache

import (
	"sync"
	"time"
)

// DefaultMaxSize caps the number of live entries per cache.
const DefaultMaxSize = 500

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL key/value cache with bounded capacity.
// Expired entries are removed lazily on read, not by a background sweep.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	order   []string // insertion order for FIFO eviction
	maxSize int
	now     func() time.Time // injectable clock for tests
}

// New creates a cache holding at most maxSize entries.
// maxSize <= 0 falls back to DefaultMaxSize.
func New[V any](maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the value for key, or ok=false if the key is absent or expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		c.remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. Overwriting an existing key keeps its
// original insertion position. When at capacity, the oldest entry is evicted.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxSize && len(c.order) > 0 {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Invalidate removes key from the cache. Removing an absent key is a no-op.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
}

// Len returns the number of stored entries, including any not yet lazily
// expired.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove deletes key from both the map and the insertion-order list.
// Caller holds the lock.
func (c *Cache[V]) remove(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
