package pqflash

import (
	"context"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/pqflash/index/diskann"
)

// streamBatch is the number of results Stream pulls from the iterator at once.
const streamBatch = 16

// Search creates a new fluent search builder for the given query vector.
//
// Example:
//
//	results, err := db.Search(query).
//	    KNN(10).
//	    L(200).
//	    Execute(ctx)
//
//	// Or with streaming:
//	for result, err := range db.Search(query).Stream(ctx) {
//	    if err != nil { break }
//	    if result.Distance > threshold { break }
//	    process(result)
//	}
func (db *DB) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{
		db:    db,
		query: query,
		k:     10,
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	db    *DB
	query []float32
	k     int
	l     int
	beam  int

	filter  Filter
	reorder bool
	ioLimit int
	stats   *QueryStats
	trace   *Trace
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// L sets the search-list width. Higher values improve recall but read more
// sectors. Must be >= k.
func (sb *SearchBuilder) L(l int) *SearchBuilder {
	sb.l = l
	return sb
}

// BeamWidth sets the number of sectors read per step.
func (sb *SearchBuilder) BeamWidth(w int) *SearchBuilder {
	sb.beam = w
	return sb
}

// Filter excludes every id for which fn returns false.
func (sb *SearchBuilder) Filter(fn func(id uint32) bool) *SearchBuilder {
	sb.filter = FilterFunc(func(id uint32) bool { return !fn(id) })
	return sb
}

// Exclude sets a Filter, for example a RoaringFilter or BitSetFilter.
func (sb *SearchBuilder) Exclude(f Filter) *SearchBuilder {
	sb.filter = f
	return sb
}

// Reorder re-ranks candidates with the full-precision reorder vectors.
func (sb *SearchBuilder) Reorder() *SearchBuilder {
	sb.reorder = true
	return sb
}

// IOLimit stops the traversal after n sector reads.
func (sb *SearchBuilder) IOLimit(n int) *SearchBuilder {
	sb.ioLimit = n
	return sb
}

// WithStats accumulates the query counters into st.
func (sb *SearchBuilder) WithStats(st *QueryStats) *SearchBuilder {
	sb.stats = st
	return sb
}

// WithTrace records the expanded nodes into t.
func (sb *SearchBuilder) WithTrace(t *Trace) *SearchBuilder {
	sb.trace = t
	return sb
}

// Execute runs the search and returns the results best first.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]Result, error) {
	return sb.db.KNNSearch(ctx, sb.query, SearchParams{
		K:              sb.k,
		LSearch:        sb.l,
		BeamWidth:      sb.beam,
		Filter:         sb.filter,
		UseReorderData: sb.reorder,
		IOLimit:        sb.ioLimit,
		Stats:          sb.stats,
		Trace:          sb.trace,
	})
}

// Stream yields results roughly best first until the traversal is exhausted
// or the caller breaks. KNN does not bound a stream.
func (sb *SearchBuilder) Stream(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		it, err := sb.db.NewIterator(ctx, sb.query, IteratorParams{
			LSearch:   sb.l,
			BeamWidth: sb.beam,
			Filter:    sb.filter,
		})
		if err != nil {
			yield(Result{}, err)
			return
		}
		defer it.Close()
		if sb.stats != nil {
			defer func() {
				st := it.Stats()
				mergeStats(sb.stats, &st)
			}()
		}

		for {
			batch, err := it.Next(ctx, streamBatch)
			if err != nil {
				yield(Result{}, translateError(err))
				return
			}
			if len(batch) == 0 {
				return
			}
			for _, r := range batch {
				if !yield(r, nil) {
					return
				}
			}
		}
	}
}

// First returns the best result, or false if there is none.
func (sb *SearchBuilder) First(ctx context.Context) (Result, bool, error) {
	res, err := sb.KNN(1).Execute(ctx)
	if err != nil || len(res) == 0 {
		return Result{}, false, err
	}
	return res[0], true, nil
}

// NewRoaringFilter excludes the ids in bm.
func NewRoaringFilter(bm *roaring.Bitmap) Filter { return diskann.NewRoaringFilter(bm) }

// NewAllowList excludes every id not in bm.
func NewAllowList(bm *roaring.Bitmap) Filter { return diskann.NewAllowList(bm) }

// NewBitSetFilter excludes the ids set in b.
func NewBitSetFilter(b *bitset.BitSet) Filter { return diskann.NewBitSetFilter(b) }
