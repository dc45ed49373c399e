package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pqflash/internal/resource"
)

func TestLRUBlockCache(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	c := NewLRUBlockCache(100, rc)
	ctx := t.Context()

	c.Set(ctx, BlockKey{"a", 0}, make([]byte, 40))
	c.Set(ctx, BlockKey{"a", 1}, make([]byte, 40))
	assert.Equal(t, int64(80), c.Size())
	assert.Equal(t, int64(80), rc.MemoryUsage())

	_, ok := c.Get(ctx, BlockKey{"a", 0})
	require.True(t, ok)

	// Evicts block 1, the least recently used.
	c.Set(ctx, BlockKey{"b", 0}, make([]byte, 40))
	_, ok = c.Get(ctx, BlockKey{"a", 1})
	assert.False(t, ok)
	assert.Equal(t, int64(80), c.Size())

	// Larger than the capacity.
	c.Set(ctx, BlockKey{"c", 0}, make([]byte, 101))
	_, ok = c.Get(ctx, BlockKey{"c", 0})
	assert.False(t, ok)

	c.Invalidate("a")
	_, ok = c.Get(ctx, BlockKey{"a", 0})
	assert.False(t, ok)
	assert.Equal(t, int64(40), rc.MemoryUsage())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(3), misses)

	require.NoError(t, c.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestLRUBlockCache_MemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 50})
	c := NewLRUBlockCache(1000, rc)

	c.Set(t.Context(), BlockKey{"a", 0}, make([]byte, 40))
	c.Set(t.Context(), BlockKey{"a", 1}, make([]byte, 40))
	_, ok := c.Get(t.Context(), BlockKey{"a", 1})
	assert.False(t, ok)
	assert.Equal(t, int64(40), c.Size())
}

func TestRistrettoBlockCache(t *testing.T) {
	c, err := NewRistrettoBlockCache(1 << 20)
	require.NoError(t, err)
	defer c.Close()

	ctx := t.Context()
	key := BlockKey{"blob", 3}
	for i := 0; i < 10; i++ {
		c.Set(ctx, key, []byte("block"))
		c.Wait()
		if _, ok := c.Get(ctx, key); ok {
			break
		}
	}
	v, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "block", string(v))

	c.Invalidate("blob")
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}

func TestNodeCache_Swap(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1000})
	c := NewNodeCache(rc)
	assert.Nil(t, c.Load())

	s := NewSnapshot(2)
	s.Put(1, Node{Neighbors: []uint32{2, 3}, Coords: make([]byte, 8)})
	s.Put(2, Node{Neighbors: []uint32{1}, Coords: make([]byte, 8)})
	require.NoError(t, c.Swap(s))
	assert.Equal(t, s.Bytes(), rc.MemoryUsage())

	held := c.Load()
	n, ok := held.Get(1)
	require.True(t, ok)
	assert.Equal(t, []uint32{2, 3}, n.Neighbors)

	// A snapshot over budget is refused and the old one stays.
	big := NewSnapshot(1)
	big.Put(9, Node{Coords: make([]byte, 2000)})
	assert.ErrorIs(t, c.Swap(big), resource.ErrMemoryLimitExceeded)
	assert.Same(t, s, c.Load())

	next := NewSnapshot(1)
	next.Put(5, Node{Coords: make([]byte, 4)})
	require.NoError(t, c.Swap(next))
	assert.Equal(t, next.Bytes(), rc.MemoryUsage())

	// Readers holding the old snapshot still see it.
	_, ok = held.Get(2)
	assert.True(t, ok)

	c.Clear()
	assert.Zero(t, rc.MemoryUsage())
	assert.Zero(t, c.Load().Len())
}

func TestVisitTracker(t *testing.T) {
	v := NewVisitTracker(10, 4)

	s1 := v.BeginSearch()
	v.Record(3, s1)
	v.Record(5, s1)
	s2 := v.BeginSearch()
	v.Record(5, s2)
	v.Record(7, s2)
	v.Record(99, s2) // ignored

	assert.Equal(t, uint32(2), v.Count(5))
	// 5 leads on count; 7 beats 3 on recency.
	assert.Equal(t, []uint32{5, 7, 3}, v.TopN(10))
	assert.Equal(t, []uint32{5}, v.TopN(1))

	v.Reset()
	assert.Empty(t, v.TopN(10))
}

func TestVisitTracker_Concurrent(t *testing.T) {
	v := NewVisitTracker(4, 4)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq := v.BeginSearch()
			for i := 0; i < 100; i++ {
				v.Record(uint32(i%4), seq)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint32(200), v.Count(0))
}

func TestLRU(t *testing.T) {
	l := NewLRU[string, int](2)
	l.Add("a", 1)
	l.Add("b", 2)
	// Re-adding refreshes recency, so "b" is evicted next.
	assert.False(t, l.Add("a", 10))
	assert.True(t, l.Add("c", 3))

	_, ok := l.Peek("b")
	assert.False(t, ok)
	v, ok := l.Peek("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, l.Len())

	l.Purge()
	assert.Zero(t, l.Len())
}
