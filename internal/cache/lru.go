package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a bounded, thread-safe recency cache.
type LRU[K comparable, V any] struct {
	c *lru.Cache[K, V]
}

// NewLRU returns an LRU holding at most size entries (minimum 1).
func NewLRU[K comparable, V any](size int) *LRU[K, V] {
	c, _ := lru.New[K, V](max(size, 1))
	return &LRU[K, V]{c: c}
}

// Peek returns the value for key without updating recency.
func (l *LRU[K, V]) Peek(key K) (V, bool) { return l.c.Peek(key) }

// Add inserts or updates key, evicting the least recently used entry when full.
func (l *LRU[K, V]) Add(key K, v V) (evicted bool) { return l.c.Add(key, v) }

// Len returns the number of entries.
func (l *LRU[K, V]) Len() int { return l.c.Len() }

// Purge removes all entries.
func (l *LRU[K, V]) Purge() { l.c.Purge() }
