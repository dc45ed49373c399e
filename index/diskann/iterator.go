package diskann

import (
	"context"
	"sync"

	"github.com/hupe1980/pqflash/internal/queue"
)

// Iterator streams search results across calls, keeping its traversal
// state. Results come roughly best first; each node is returned at most once.
//
// The workspace holds three containers: candidates (every discovered node by
// PQ distance), retset (admissible discovered nodes by PQ distance, bounded
// by LSearch) and full (expanded admissible nodes by exact distance). An
// exact result is released once PQHeadroom admissible nodes beyond those
// already released are confirmed by the traversal.
type Iterator struct {
	ix *Index
	p  IteratorParams
	s  queryScratch

	candidates *queue.CandidateQueue
	retset     *queue.ApproxSet
	full       *queue.ExactSet
	backup     []queue.Candidate

	// good counts admissible nodes confirmed by the traversal, next the
	// exact results released to backup.
	good int
	next int

	mu     sync.Mutex
	closed bool
}

// NewIterator prepares a streaming search for query.
func (ix *Index) NewIterator(ctx context.Context, query []float32, p IteratorParams) (*Iterator, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}
	if p.LSearch == 0 {
		p.LSearch = DefaultLSearch
	}
	if p.LSearch < 0 {
		return nil, invalidParams("l_search %d", p.LSearch)
	}
	if err := normalizeBeam(&p.BeamWidth); err != nil {
		return nil, err
	}
	if p.PQHeadroom == 0 {
		p.PQHeadroom = p.LSearch
	}
	if p.FullCapacity <= 0 {
		p.FullCapacity = int(ix.hdr.NumPoints)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	it := &Iterator{
		ix:         ix,
		p:          p,
		s:          ix.newScratch(),
		candidates: queue.NewCandidateQueue(p.LSearch),
		retset:     queue.NewApproxSet(p.LSearch),
		full:       queue.NewExactSet(p.FullCapacity),
	}
	if err := ix.prepare(query, &it.s.q); err != nil {
		return nil, err
	}
	ix.res.Table.Populate(it.s.q.vec, it.s.pqDists)

	entry := ix.entryPoint(&it.s)
	it.s.visited.Visit(entry)
	it.insertToPQ(entry, ix.pqDistance(&it.s, entry))
	return it, nil
}

// Stats returns the counters accumulated by the iterator so far.
func (it *Iterator) Stats() QueryStats {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.s.stats
}

// Next returns up to n further results. An empty result means the
// traversal is exhausted.
func (it *Iterator) Next(ctx context.Context, n int) ([]Result, error) {
	if n <= 0 {
		return nil, ErrInvalidK
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return nil, ErrClosed
	}
	if err := it.ix.checkOpen(); err != nil {
		return nil, err
	}

	for len(it.backup) < n && it.hasCandidates() {
		if err := it.step(ctx); err != nil {
			return nil, err
		}
	}
	if !it.hasCandidates() {
		it.moveLastFullRetsetToBackup()
	}
	return it.emit(n), nil
}

// Flush releases every pending exact result without further traversal.
func (it *Iterator) Flush() []Result {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return nil
	}
	it.moveLastFullRetsetToBackup()
	return it.emit(len(it.backup))
}

// Close releases the iterator. Further calls fail with ErrClosed.
func (it *Iterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.closed = true
	it.backup = nil
	return nil
}

func (it *Iterator) hasCandidates() bool { return it.candidates.Len() > 0 }

// shouldVisitNextCandidate reports whether the best candidate is at least as
// close as the best unconfirmed admissible node.
func (it *Iterator) shouldVisitNextCandidate() bool {
	c, ok := it.candidates.Peek()
	if !ok {
		return false
	}
	r, ok := it.retset.Best()
	if !ok {
		return true
	}
	return c.Dist <= r.Dist
}

func (it *Iterator) insertToPQ(id uint32, d float32) {
	it.candidates.Push(id, d)
	if !it.ix.hdr.IsFrozen(id) && !excluded(it.p.Filter, id) {
		it.retset.Insert(id, d)
	}
}

// popPQRetset confirms admissible nodes no remaining candidate can beat.
func (it *Iterator) popPQRetset() {
	for !it.shouldVisitNextCandidate() && it.retset.Len() > 0 {
		it.retset.PopBest()
		it.good++
	}
}

func (it *Iterator) moveFullRetsetToBackup() {
	if it.good-it.next < it.p.PQHeadroom || it.full.Len() == 0 {
		return
	}
	c, _ := it.full.PopBest()
	it.backup = append(it.backup, c)
	it.next++
}

func (it *Iterator) moveLastFullRetsetToBackup() {
	for it.full.Len() > 0 {
		c, _ := it.full.PopBest()
		it.backup = append(it.backup, c)
		it.next++
	}
}

// step expands up to BeamWidth candidates and releases at most one result.
func (it *Iterator) step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ix, s := it.ix, &it.s
	s.ids = s.ids[:0]
	for len(s.ids) < it.p.BeamWidth && it.shouldVisitNextCandidate() {
		c, _ := it.candidates.Pop()
		s.ids = append(s.ids, c.ID)
	}

	if len(s.ids) > 0 {
		st := &s.stats
		st.NumHops++
		err := ix.readNodes(ctx, s.ids, ix.nodeCache.Load(), s, st, func(id uint32, coords []byte, nbrs []uint32) error {
			if !ix.hdr.IsFrozen(id) && !excluded(it.p.Filter, id) {
				it.full.Insert(id, ix.exactDistance(s, id, coords))
				st.NumCmps++
			}
			if err := ix.scoreNeighbors(s, st, nbrs); err != nil {
				return err
			}
			for i, nb := range s.newIDs {
				it.insertToPQ(nb, s.pqOut[i])
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	it.popPQRetset()
	it.moveFullRetsetToBackup()
	return nil
}

// emit removes up to n results from backup, finalizing their scores.
func (it *Iterator) emit(n int) []Result {
	n = min(n, len(it.backup))
	out := make([]Result, n)
	for i, c := range it.backup[:n] {
		out[i] = Result{ID: c.ID, Distance: it.ix.score(&it.s.q, c.Dist)}
	}
	it.backup = it.backup[n:]
	return out
}
