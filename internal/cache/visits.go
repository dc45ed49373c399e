package cache

import (
	"sort"
	"sync/atomic"
)

// VisitTracker counts node visits for workload-aware caching.
// Counters are approximate; concurrent increments never lock.
type VisitTracker struct {
	counts  []atomic.Uint32
	recency *LRU[uint32, uint64]
	seq     atomic.Uint64
}

// NewVisitTracker tracks numPoints nodes and remembers the last search that
// touched up to recencySize of them.
func NewVisitTracker(numPoints, recencySize int) *VisitTracker {
	return &VisitTracker{
		counts:  make([]atomic.Uint32, numPoints),
		recency: NewLRU[uint32, uint64](recencySize),
	}
}

// BeginSearch returns a new search sequence number.
func (t *VisitTracker) BeginSearch() uint64 { return t.seq.Add(1) }

// Record counts a visit of id by search seq.
func (t *VisitTracker) Record(id uint32, seq uint64) {
	if int(id) >= len(t.counts) {
		return
	}
	t.counts[id].Add(1)
	t.recency.Add(id, seq)
}

// Count returns the visits recorded for id.
func (t *VisitTracker) Count(id uint32) uint32 {
	if int(id) >= len(t.counts) {
		return 0
	}
	return t.counts[id].Load()
}

// TopN returns up to n visited ids, most visited first. Ties prefer the more
// recently visited node, then the lower id.
func (t *VisitTracker) TopN(n int) []uint32 {
	type ranked struct {
		id    uint32
		count uint32
		last  uint64
	}
	var all []ranked
	for i := range t.counts {
		if c := t.counts[i].Load(); c > 0 {
			last, _ := t.recency.Peek(uint32(i))
			all = append(all, ranked{uint32(i), c, last})
		}
	}
	sort.Slice(all, func(a, b int) bool {
		x, y := all[a], all[b]
		if x.count != y.count {
			return x.count > y.count
		}
		if x.last != y.last {
			return x.last > y.last
		}
		return x.id < y.id
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]uint32, len(all))
	for i, r := range all {
		out[i] = r.id
	}
	return out
}

// Reset clears all counters and the recency cache.
func (t *VisitTracker) Reset() {
	for i := range t.counts {
		t.counts[i].Store(0)
	}
	t.recency.Purge()
}
