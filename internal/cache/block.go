package cache

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/hupe1980/pqflash/internal/resource"
)

// BlockKey identifies one block of a named blob.
type BlockKey struct {
	Path  string
	Block uint64
}

// BlockCache is a byte-oriented cache for immutable blob blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	Get(ctx context.Context, key BlockKey) ([]byte, bool)
	Set(ctx context.Context, key BlockKey, b []byte)
	// Invalidate drops every block of path.
	Invalidate(path string)
	Stats() (hits, misses int64)
	Close() error
}

// LRUBlockCache is a byte-bounded LRU BlockCache.
type LRUBlockCache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[BlockKey, []byte]
	capacity int64
	size     int64
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLRUBlockCache creates a cache holding at most capacity bytes. Memory is
// reserved from rc (which may be nil) per cached block.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	c := &LRUBlockCache{capacity: capacity, rc: rc}
	// Eviction is driven by bytes, not entry count.
	c.lru, _ = simplelru.NewLRU[BlockKey, []byte](math.MaxInt32, c.onEvict)
	return c
}

func (c *LRUBlockCache) onEvict(_ BlockKey, b []byte) {
	c.size -= int64(len(b))
	c.rc.ReleaseMemory(int64(len(b)))
}

// Get returns a cached block.
func (c *LRUBlockCache) Get(_ context.Context, key BlockKey) ([]byte, bool) {
	c.mu.Lock()
	b, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return b, ok
}

// Set caches a block. Blocks larger than the capacity, or refused by the
// resource controller, are not cached.
func (c *LRUBlockCache) Set(_ context.Context, key BlockKey, b []byte) {
	n := int64(len(b))
	if n > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
	for c.size+n > c.capacity && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
	if err := c.rc.AcquireMemory(n); err != nil {
		return
	}
	c.size += n
	c.lru.Add(key, b)
}

// Invalidate drops every block of path.
func (c *LRUBlockCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.lru.Keys() {
		if k.Path == path {
			c.lru.Remove(k)
		}
	}
}

// Size returns the cached bytes.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns hit and miss counts.
func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases all reserved memory.
func (c *LRUBlockCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	return nil
}
