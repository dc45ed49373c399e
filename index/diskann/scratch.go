package diskann

import (
	"github.com/hupe1980/pqflash/internal/aio"
	"github.com/hupe1980/pqflash/internal/mem"
	"github.com/hupe1980/pqflash/internal/queue"
	"github.com/hupe1980/pqflash/internal/visited"
)

// queryScratch is the per-slot working memory of one query.
type queryScratch struct {
	q       query
	pqDists []float32
	coords  []float32
	visited *visited.Set
	list    *queue.SearchList
	exact   *queue.ExactSet
	stats   QueryStats

	frontier  []queue.Candidate
	ids       []uint32
	misses    []uint32
	nbrs      []uint32
	newIDs    []uint32
	codes     []byte
	pqOut     []float32
	reordered []queue.Candidate

	bufs      [][]byte
	reqs      []aio.Request
	sectorIdx map[int64]int
}

func (ix *Index) newScratch() queryScratch {
	dim := int(ix.hdr.Dim)
	return queryScratch{
		q: query{
			raw: make([]float32, 0, ix.queryDim),
			vec: make([]float32, dim),
		},
		pqDists:   make([]float32, ix.res.Table.TableLen()),
		coords:    make([]float32, dim),
		visited:   visited.New(int(ix.hdr.NumPoints)),
		list:      queue.NewSearchList(DefaultLSearch),
		exact:     queue.NewExactSet(DefaultLSearch),
		nbrs:      make([]uint32, 0, ix.hdr.MaxDegree),
		newIDs:    make([]uint32, 0, ix.hdr.MaxDegree),
		codes:     make([]byte, 0, int(ix.hdr.MaxDegree)*ix.res.Table.NumChunks()),
		pqOut:     make([]float32, ix.hdr.MaxDegree),
		sectorIdx: make(map[int64]int),
	}
}

// reset prepares the scratch for a traversal with the given widths.
func (s *queryScratch) reset(lsearch, exactCap int) {
	s.visited.Reset()
	s.list.Reset(lsearch)
	s.exact.Reset(exactCap)
	s.frontier = s.frontier[:0]
}

// statsFor returns the stats sink of a query: the caller's or a private one.
func (s *queryScratch) statsFor(st *QueryStats) *QueryStats {
	if st != nil {
		return st
	}
	s.stats = QueryStats{}
	return &s.stats
}

// sectorBuf returns the i-th read buffer with at least size bytes.
func (s *queryScratch) sectorBuf(i, size int) []byte {
	for len(s.bufs) <= i {
		s.bufs = append(s.bufs, nil)
	}
	if cap(s.bufs[i]) < size {
		s.bufs[i] = mem.Sectors(size)
	}
	return s.bufs[i][:size]
}
