// Package cache provides a bounded LRU cache for values that lapse over time.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is a cached value that knows when it lapses.
type Entry interface {
	Expired(now time.Time) bool
}

// Cache is a fixed-capacity LRU keyed by string. Both reads and writes count
// as use for eviction ordering. Expired entries are evicted on read and the
// read reported as a miss, so callers never observe a lapsed value.
//
// The cache is safe for concurrent use.
type Cache[V Entry] struct {
	lru *lru.Cache[string, V]
}

// New creates a cache bounded to capacity entries.
func New[V Entry](capacity int) (*Cache[V], error) {
	l, err := lru.New[string, V](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{lru: l}, nil
}

// Get returns the live value for key. Expired entries are removed and
// reported as a miss.
func (c *Cache[V]) Get(key string, now time.Time) (V, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if v.Expired(now) {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return v, true
}

// Put stores the value, evicting the least recently used entry when full.
func (c *Cache[V]) Put(key string, v V) {
	c.lru.Add(key, v)
}

// Delete removes the value for key if present.
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of cached entries, including any not yet observed
// as expired.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
