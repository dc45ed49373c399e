package diskann

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
)

// Filter excludes nodes from results. Excluded nodes are still traversed.
// Implementations must be safe for concurrent use.
type Filter interface {
	Excluded(id uint32) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(id uint32) bool

// Excluded implements Filter.
func (f FilterFunc) Excluded(id uint32) bool { return f(id) }

// BitSetFilter excludes every id whose bit is set.
type BitSetFilter struct {
	bits *bitset.BitSet
}

// NewBitSetFilter returns a filter excluding the set bits of b.
func NewBitSetFilter(b *bitset.BitSet) *BitSetFilter {
	return &BitSetFilter{bits: b}
}

// Excluded implements Filter.
func (f *BitSetFilter) Excluded(id uint32) bool { return f.bits.Test(uint(id)) }

// RoaringFilter excludes (or, as an allow list, admits) the ids of a bitmap.
type RoaringFilter struct {
	bm    *roaring.Bitmap
	allow bool
}

// NewRoaringFilter returns a filter excluding the ids in bm.
func NewRoaringFilter(bm *roaring.Bitmap) *RoaringFilter {
	return &RoaringFilter{bm: bm}
}

// NewAllowList returns a filter excluding every id not in bm.
func NewAllowList(bm *roaring.Bitmap) *RoaringFilter {
	return &RoaringFilter{bm: bm, allow: true}
}

// Excluded implements Filter.
func (f *RoaringFilter) Excluded(id uint32) bool {
	return f.bm.Contains(id) != f.allow
}

func excluded(f Filter, id uint32) bool {
	return f != nil && f.Excluded(id)
}
