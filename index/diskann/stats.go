package diskann

import (
	"sync"
	"time"
)

// QueryStats collects per-query counters. The engine only adds to it.
type QueryStats struct {
	Elapsed time.Duration
	IOTime  time.Duration
	// NumIOs counts sector reads, ReadBytes their size.
	NumIOs    int
	ReadBytes int64
	CacheHits int
	// NumHops counts beam expansion steps.
	NumHops int
	NumCmps int
	// NumPQ counts PQ distance lookups.
	NumPQ      int
	BruteForce bool
}

func (s *QueryStats) addIO(n int, bytes int64, d time.Duration) {
	if s == nil {
		return
	}
	s.NumIOs += n
	s.ReadBytes += bytes
	s.IOTime += d
}

// Trace records the order in which nodes were expanded.
type Trace struct {
	mu      sync.Mutex
	visited []uint32
}

// Visited returns a copy of the expanded ids.
func (t *Trace) Visited() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint32(nil), t.visited...)
}

func (t *Trace) record(id uint32) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.visited = append(t.visited, id)
	t.mu.Unlock()
}
