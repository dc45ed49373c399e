// Package visited provides the per-query dedup set used during graph traversal.
package visited

import "github.com/bits-and-blooms/bitset"

// Set tracks visited node ids. Reset clears only the ids touched since the
// last reset, so a pooled Set costs O(visited) per query rather than O(n).
type Set struct {
	bits  *bitset.BitSet
	dirty []uint32
}

// New creates a set sized for capacity node ids.
func New(capacity int) *Set {
	return &Set{
		bits:  bitset.New(uint(capacity)),
		dirty: make([]uint32, 0, 256),
	}
}

// Visit marks id and reports whether it was newly added.
func (s *Set) Visit(id uint32) bool {
	if s.bits.Test(uint(id)) {
		return false
	}
	s.bits.Set(uint(id))
	s.dirty = append(s.dirty, id)
	return true
}

// Visited reports whether id has been marked.
func (s *Set) Visited(id uint32) bool {
	return s.bits.Test(uint(id))
}

// Len returns the number of ids visited since the last reset.
func (s *Set) Len() int { return len(s.dirty) }

// Reset clears every id visited since the last reset.
func (s *Set) Reset() {
	for _, id := range s.dirty {
		s.bits.Clear(uint(id))
	}
	s.dirty = s.dirty[:0]
}
