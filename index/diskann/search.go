package diskann

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/pqflash/internal/aio"
	"github.com/hupe1980/pqflash/internal/cache"
	"github.com/hupe1980/pqflash/internal/layout"
	"github.com/hupe1980/pqflash/internal/queue"
)

// bruteForceBatch is the number of nodes read per brute-force step.
const bruteForceBatch = 64

type beamParams struct {
	lsearch   int
	beamWidth int
	exactCap  int
	filter    Filter
	ioLimit   int
	useCache  bool
	tracker   *cache.VisitTracker
	trace     *Trace
}

// beamSearch traverses the graph from the entry point. On return s.exact
// holds the best admissible expanded nodes by exact distance.
func (ix *Index) beamSearch(ctx context.Context, s *queryScratch, st *QueryStats, bp beamParams) error {
	s.reset(bp.lsearch, bp.exactCap)
	ix.res.Table.Populate(s.q.vec, s.pqDists)

	var snap *cache.Snapshot
	if bp.useCache {
		snap = ix.nodeCache.Load()
	}
	var seq uint64
	if bp.tracker != nil {
		seq = bp.tracker.BeginSearch()
	}

	entry := ix.entryPoint(s)
	s.visited.Visit(entry)
	s.list.Insert(entry, ix.pqDistance(s, entry))
	st.NumPQ++

	expand := func(id uint32, coords []byte, nbrs []uint32) error {
		bp.trace.record(id)
		if bp.tracker != nil {
			bp.tracker.Record(id, seq)
		}
		if !ix.hdr.IsFrozen(id) && !excluded(bp.filter, id) {
			s.exact.Insert(id, ix.exactDistance(s, id, coords))
			st.NumCmps++
		}
		if err := ix.scoreNeighbors(s, st, nbrs); err != nil {
			return err
		}
		for i, nb := range s.newIDs {
			s.list.Insert(nb, s.pqOut[i])
		}
		return nil
	}

	startIOs := st.NumIOs
	for s.list.HasUnexpanded() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bp.ioLimit > 0 && st.NumIOs-startIOs >= bp.ioLimit {
			break
		}
		s.frontier = s.list.NextBatch(s.frontier[:0], bp.beamWidth)
		s.ids = s.ids[:0]
		for _, c := range s.frontier {
			s.ids = append(s.ids, c.ID)
		}
		st.NumHops++
		if err := ix.readNodes(ctx, s.ids, snap, s, st, expand); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the K nearest admissible nodes to query.
func (ix *Index) Search(ctx context.Context, query []float32, p SearchParams) ([]Result, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	start := time.Now()

	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	s := lease.Value()

	if err := ix.prepare(query, &s.q); err != nil {
		return nil, err
	}
	st := s.statsFor(p.Stats)

	err = ix.beamSearch(ctx, s, st, beamParams{
		lsearch:   p.LSearch,
		beamWidth: p.BeamWidth,
		exactCap:  max(p.LSearch, p.K*FullPrecisionReorderMultiplier),
		filter:    p.Filter,
		ioLimit:   p.IOLimit,
		useCache:  true,
		tracker:   ix.tracker,
		trace:     p.Trace,
	})
	if err != nil {
		return nil, err
	}

	cands := s.exact.Items()
	if len(cands) < p.K {
		if cands, err = ix.bruteForce(ctx, s, st, p.K, p.Filter, cands); err != nil {
			return nil, err
		}
	}
	if p.UseReorderData && ix.hdr.HasReorderData() {
		n := min(len(cands), p.K*FullPrecisionReorderMultiplier)
		if cands, err = ix.reorder(ctx, s, st, cands[:n]); err != nil {
			return nil, err
		}
	}

	n := min(len(cands), p.K)
	out := make([]Result, n)
	for i, c := range cands[:n] {
		out[i] = Result{ID: c.ID, Distance: ix.score(&s.q, c.Dist)}
	}
	st.Elapsed += time.Since(start)
	return out, nil
}

// reorder re-ranks cands by their full-precision reorder vectors.
func (ix *Index) reorder(ctx context.Context, s *queryScratch, st *QueryStats, cands []queue.Candidate) ([]queue.Candidate, error) {
	clear(s.sectorIdx)
	s.reqs = s.reqs[:0]
	for _, c := range cands {
		off, _ := ix.hdr.ReorderSectorOffset(c.ID)
		if _, ok := s.sectorIdx[off]; ok {
			continue
		}
		s.sectorIdx[off] = len(s.reqs)
		s.reqs = append(s.reqs, aio.Request{Offset: off, Buf: s.sectorBuf(len(s.reqs), layout.SectorLen)})
	}

	start := time.Now()
	if err := ix.reader.Read(ctx, s.reqs); err != nil {
		return nil, fmt.Errorf("read %d reorder sectors: %w", len(s.reqs), err)
	}
	st.addIO(len(s.reqs), int64(len(s.reqs)*layout.SectorLen), time.Since(start))

	dim := int(ix.hdr.ReorderDim)
	s.reordered = s.reordered[:0]
	for _, c := range cands {
		off, in := ix.hdr.ReorderSectorOffset(c.ID)
		buf := s.reqs[s.sectorIdx[off]].Buf
		layout.DecodeFloat32s(buf[in:in+4*dim], s.coords[:dim])
		s.reordered = append(s.reordered, queue.Candidate{ID: c.ID, Dist: ix.compare(&s.q, c.ID, s.coords[:dim])})
		st.NumCmps++
	}
	sortCandidates(s.reordered)
	return s.reordered, nil
}

// bruteForce scans admissible nodes not yet ranked, cache first, and
// returns the best k among them and found.
func (ix *Index) bruteForce(ctx context.Context, s *queryScratch, st *QueryStats, k int, f Filter, found []queue.Candidate) ([]queue.Candidate, error) {
	st.BruteForce = true
	best := queue.NewExactSet(k)
	seen := make(map[uint32]struct{}, len(found))
	for _, c := range found {
		best.Insert(c.ID, c.Dist)
		seen[c.ID] = struct{}{}
	}

	limit := ix.opts.bruteForceLimit
	if limit <= 0 {
		limit = int(ix.hdr.NumPoints)
	}
	snap := ix.nodeCache.Load()
	rank := func(id uint32, coords []byte, _ []uint32) error {
		best.Insert(id, ix.exactDistance(s, id, coords))
		st.NumCmps++
		return nil
	}

	batch := make([]uint32, 0, bruteForceBatch)
	scanned := 0
	for id := uint32(0); uint64(id) < ix.hdr.NumPoints && scanned < limit; id++ {
		if ix.hdr.IsFrozen(id) || excluded(f, id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		scanned++
		batch = append(batch, id)
		if len(batch) == bruteForceBatch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := ix.readNodes(ctx, batch, snap, s, st, rank); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}
	if err := ix.readNodes(ctx, batch, snap, s, st, rank); err != nil {
		return nil, err
	}

	ix.logger.Debug("brute-force fallback", "found", len(found), "scanned", scanned, "k", k)
	return append([]queue.Candidate(nil), best.Items()...), nil
}

// sortCandidates orders by distance, ties by id.
func sortCandidates(c []queue.Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Dist != c[j].Dist {
			return c[i].Dist < c[j].Dist
		}
		return c[i].ID < c[j].ID
	})
}
