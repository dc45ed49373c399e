package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
)

// RistrettoBlockCache is a BlockCache with TinyLFU admission. Cost is the
// block length in bytes.
type RistrettoBlockCache struct {
	cache *ristretto.Cache

	mu  sync.RWMutex
	gen map[string]uint64

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRistrettoBlockCache creates a cache bounded to maxBytes.
func NewRistrettoBlockCache(maxBytes int64) (*RistrettoBlockCache, error) {
	// Roughly ten counters per expected 4 KiB entry.
	counters := max(maxBytes/4096*10, 1000)
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoBlockCache{cache: c, gen: make(map[string]uint64)}, nil
}

// key embeds the path generation so Invalidate can retire old blocks
// without enumerating them.
func (c *RistrettoBlockCache) key(k BlockKey) string {
	c.mu.RLock()
	g := c.gen[k.Path]
	c.mu.RUnlock()
	return k.Path + "#" + strconv.FormatUint(g, 10) + "#" + strconv.FormatUint(k.Block, 10)
}

// Get returns a cached block.
func (c *RistrettoBlockCache) Get(_ context.Context, key BlockKey) ([]byte, bool) {
	v, ok := c.cache.Get(c.key(key))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v.([]byte), true
}

// Set offers a block to the cache. Admission is asynchronous and may drop it.
func (c *RistrettoBlockCache) Set(_ context.Context, key BlockKey, b []byte) {
	c.cache.Set(c.key(key), b, int64(len(b)))
}

// Wait blocks until buffered Sets are applied.
func (c *RistrettoBlockCache) Wait() { c.cache.Wait() }

// Invalidate retires every block of path.
func (c *RistrettoBlockCache) Invalidate(path string) {
	c.mu.Lock()
	c.gen[path]++
	c.mu.Unlock()
}

// Stats returns hit and miss counts.
func (c *RistrettoBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops ristretto's background goroutines.
func (c *RistrettoBlockCache) Close() error {
	c.cache.Close()
	return nil
}
