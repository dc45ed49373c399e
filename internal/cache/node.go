package cache

import (
	"fmt"
	"sync"

	"github.com/hupe1980/pqflash/internal/resource"
)

// nodeOverhead approximates per-entry map and slice header cost.
const nodeOverhead = 64

// Node is a cached copy of a node record.
type Node struct {
	Neighbors []uint32
	// Coords holds the stored coordinate bytes.
	Coords []byte
}

// Snapshot is an immutable-once-published set of cached nodes.
type Snapshot struct {
	nodes map[uint32]Node
	bytes int64
}

// NewSnapshot returns an empty snapshot sized for n nodes.
func NewSnapshot(n int) *Snapshot {
	return &Snapshot{nodes: make(map[uint32]Node, n)}
}

// Put adds a node. It must not be called after the snapshot is published.
func (s *Snapshot) Put(id uint32, n Node) {
	if old, ok := s.nodes[id]; ok {
		s.bytes -= nodeBytes(old)
	}
	s.nodes[id] = n
	s.bytes += nodeBytes(n)
}

// Get returns the cached node for id. A nil snapshot is empty.
func (s *Snapshot) Get(id uint32) (Node, bool) {
	if s == nil {
		return Node{}, false
	}
	n, ok := s.nodes[id]
	return n, ok
}

// Len returns the number of cached nodes.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.nodes)
}

// Bytes returns the estimated memory footprint.
func (s *Snapshot) Bytes() int64 {
	if s == nil {
		return 0
	}
	return s.bytes
}

// IDs returns the cached ids in unspecified order.
func (s *Snapshot) IDs() []uint32 {
	if s == nil {
		return nil
	}
	ids := make([]uint32, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	return ids
}

func nodeBytes(n Node) int64 {
	return int64(4*len(n.Neighbors)+len(n.Coords)) + nodeOverhead
}

// NodeCache publishes node snapshots to concurrent readers.
type NodeCache struct {
	mu   sync.RWMutex
	snap *Snapshot
	rc   *resource.Controller
}

// NewNodeCache returns an empty cache reserving memory from rc (may be nil).
func NewNodeCache(rc *resource.Controller) *NodeCache {
	return &NodeCache{rc: rc}
}

// Load returns the current snapshot, possibly nil.
func (c *NodeCache) Load() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Swap publishes s, replacing the current snapshot. The new snapshot's
// memory is reserved before the swap; on failure the current snapshot stays.
func (c *NodeCache) Swap(s *Snapshot) error {
	if err := c.rc.AcquireMemory(s.Bytes()); err != nil {
		return fmt.Errorf("node cache of %d bytes: %w", s.Bytes(), err)
	}
	c.mu.Lock()
	old := c.snap
	c.snap = s
	c.mu.Unlock()
	c.rc.ReleaseMemory(old.Bytes())
	return nil
}

// Clear drops the current snapshot and releases its memory.
func (c *NodeCache) Clear() {
	c.mu.Lock()
	old := c.snap
	c.snap = nil
	c.mu.Unlock()
	c.rc.ReleaseMemory(old.Bytes())
}
