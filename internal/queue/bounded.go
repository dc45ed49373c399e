package queue

import "sort"

type bounded struct {
	items    []Candidate
	capacity int // 0 means unbounded
	byID     bool
}

func (b *bounded) less(x, y Candidate) bool {
	if x.Dist != y.Dist {
		return x.Dist < y.Dist
	}
	return b.byID && x.ID < y.ID
}

func (b *bounded) insert(c Candidate) bool {
	n := len(b.items)
	if b.capacity > 0 && n >= b.capacity && !b.less(c, b.items[n-1]) {
		return false
	}
	pos := sort.Search(n, func(i int) bool { return b.less(c, b.items[i]) })
	b.items = append(b.items, Candidate{})
	copy(b.items[pos+1:], b.items[pos:])
	b.items[pos] = c
	if b.capacity > 0 && len(b.items) > b.capacity {
		b.items = b.items[:b.capacity]
	}
	return true
}

func (b *bounded) best() (Candidate, bool) {
	if len(b.items) == 0 {
		return Candidate{}, false
	}
	return b.items[0], true
}

func (b *bounded) popBest() (Candidate, bool) {
	if len(b.items) == 0 {
		return Candidate{}, false
	}
	c := b.items[0]
	copy(b.items, b.items[1:])
	b.items = b.items[:len(b.items)-1]
	return c, true
}

// ApproxSet is a bounded best-first set of approximate results.
// Equal distances keep insertion order.
type ApproxSet struct{ b bounded }

// NewApproxSet returns a set holding at most capacity entries (0 = unbounded).
func NewApproxSet(capacity int) *ApproxSet {
	return &ApproxSet{b: bounded{capacity: capacity}}
}

// Insert admits c unless the set is full and c is not better than the worst entry.
func (s *ApproxSet) Insert(id uint32, dist float32) bool {
	return s.b.insert(Candidate{id, dist})
}

// Best returns the best entry.
func (s *ApproxSet) Best() (Candidate, bool) { return s.b.best() }

// PopBest removes and returns the best entry.
func (s *ApproxSet) PopBest() (Candidate, bool) { return s.b.popBest() }

// Len returns the number of entries.
func (s *ApproxSet) Len() int { return len(s.b.items) }

// Reset empties the set and sets a new capacity.
func (s *ApproxSet) Reset(capacity int) {
	s.b.items = s.b.items[:0]
	s.b.capacity = capacity
}

// ExactSet is a bounded best-first set of exact results. Equal distances
// order by id ascending.
type ExactSet struct{ b bounded }

// NewExactSet returns a set holding at most capacity entries (0 = unbounded).
func NewExactSet(capacity int) *ExactSet {
	return &ExactSet{b: bounded{capacity: capacity, byID: true}}
}

// Insert admits c unless the set is full and c is not better than the worst entry.
func (s *ExactSet) Insert(id uint32, dist float32) bool {
	return s.b.insert(Candidate{id, dist})
}

// Best returns the best entry.
func (s *ExactSet) Best() (Candidate, bool) { return s.b.best() }

// PopBest removes and returns the best entry.
func (s *ExactSet) PopBest() (Candidate, bool) { return s.b.popBest() }

// Len returns the number of entries.
func (s *ExactSet) Len() int { return len(s.b.items) }

// Capacity returns the bound (0 = unbounded).
func (s *ExactSet) Capacity() int { return s.b.capacity }

// Items returns the entries best first. The slice aliases internal storage.
func (s *ExactSet) Items() []Candidate { return s.b.items }

// Reset empties the set and sets a new capacity.
func (s *ExactSet) Reset(capacity int) {
	s.b.items = s.b.items[:0]
	s.b.capacity = capacity
}
