package diskann

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pqflash/distance"
)

// RangeResults holds the results of a range search batch. The results of
// query i are IDs[Lims[i]:Lims[i+1]] and Distances[Lims[i]:Lims[i+1]].
type RangeResults struct {
	IDs       []uint32
	Distances []float32
	Lims      []int
}

// RangeSearch returns every admissible node found within the radius, best
// first. The search list starts at MinLSearch and doubles up to MaxLSearch
// while at least half of it lies inside the radius.
func (ix *Index) RangeSearch(ctx context.Context, query []float32, p RangeParams) ([]Result, error) {
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
	accept := ix.rangeAcceptor(p)

	var out []Result
	for l := p.MinLSearch; ; l = min(2*l, p.MaxLSearch) {
		err := ix.beamSearch(ctx, s, st, beamParams{
			lsearch:   l,
			beamWidth: p.BeamWidth,
			exactCap:  l,
			filter:    p.Filter,
			useCache:  true,
			tracker:   ix.tracker,
		})
		if err != nil {
			return nil, err
		}

		out = out[:0]
		for _, c := range s.exact.Items() {
			if d := ix.score(&s.q, c.Dist); accept(d) {
				out = append(out, Result{ID: c.ID, Distance: d})
			}
		}
		if 2*len(out) < l || l >= p.MaxLSearch {
			break
		}
	}
	st.Elapsed += time.Since(start)
	return out, nil
}

func (ix *Index) rangeAcceptor(p RangeParams) func(float32) bool {
	if ix.hdr.Metric == distance.MetricL2 {
		lo := float32(0)
		if p.HasRangeFilter {
			lo = p.RangeFilter
		}
		return func(d float32) bool { return d >= lo && d < p.Radius }
	}
	hi := float32(math.Inf(1))
	if p.HasRangeFilter {
		hi = p.RangeFilter
	}
	return func(s float32) bool { return s > p.Radius && s <= hi }
}

// RangeSearchBatch runs RangeSearch for every query in parallel. Stats in p
// is ignored.
func (ix *Index) RangeSearchBatch(ctx context.Context, queries [][]float32, p RangeParams) (*RangeResults, error) {
	p.Stats = nil
	per := make([][]Result, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.pool.Size())
	for i, q := range queries {
		g.Go(func() error {
			r, err := ix.RangeSearch(gctx, q, p)
			per[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &RangeResults{Lims: make([]int, len(queries)+1)}
	for i, r := range per {
		for _, hit := range r {
			res.IDs = append(res.IDs, hit.ID)
			res.Distances = append(res.Distances, hit.Distance)
		}
		res.Lims[i+1] = res.Lims[i] + len(r)
	}
	return res, nil
}
