package queue

import "sort"

// Entry is a search-list slot.
type Entry struct {
	Candidate
	Expanded bool
}

// SearchList is the bounded, sorted candidate list of a batch search.
type SearchList struct {
	items    []Entry
	capacity int
	// cursor is a lower bound on the index of the first unexpanded entry.
	cursor int
}

// NewSearchList returns an empty list of the given width.
func NewSearchList(capacity int) *SearchList {
	return &SearchList{items: make([]Entry, 0, capacity+1), capacity: capacity}
}

// Len returns the number of entries.
func (l *SearchList) Len() int { return len(l.items) }

// Capacity returns the list width.
func (l *SearchList) Capacity() int { return l.capacity }

// At returns the i-th best entry.
func (l *SearchList) At(i int) Entry { return l.items[i] }

// Insert adds a candidate. When the list is full, a candidate that is not
// strictly better than the worst entry is rejected and otherwise the worst
// entry is dropped. Equal distances keep insertion order.
func (l *SearchList) Insert(id uint32, dist float32) bool {
	n := len(l.items)
	if n >= l.capacity && (l.capacity == 0 || dist >= l.items[n-1].Dist) {
		return false
	}
	pos := sort.Search(n, func(i int) bool { return dist < l.items[i].Dist })
	l.items = append(l.items, Entry{})
	copy(l.items[pos+1:], l.items[pos:])
	l.items[pos] = Entry{Candidate: Candidate{id, dist}}
	if len(l.items) > l.capacity {
		l.items = l.items[:l.capacity]
	}
	if pos < l.cursor {
		l.cursor = pos
	}
	return true
}

// HasUnexpanded reports whether any entry still needs expansion.
func (l *SearchList) HasUnexpanded() bool {
	for i := l.cursor; i < len(l.items); i++ {
		if !l.items[i].Expanded {
			l.cursor = i
			return true
		}
	}
	l.cursor = len(l.items)
	return false
}

// NextBatch marks up to n of the best unexpanded entries as expanded and
// appends them to dst.
func (l *SearchList) NextBatch(dst []Candidate, n int) []Candidate {
	taken := 0
	for i := l.cursor; i < len(l.items) && taken < n; i++ {
		if l.items[i].Expanded {
			continue
		}
		l.items[i].Expanded = true
		dst = append(dst, l.items[i].Candidate)
		taken++
	}
	return dst
}

// Reset empties the list and sets a new width.
func (l *SearchList) Reset(capacity int) {
	l.items = l.items[:0]
	l.capacity = capacity
	l.cursor = 0
}
