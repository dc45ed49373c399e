package diskann

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/pqflash/distance"
	"github.com/hupe1980/pqflash/internal/aio"
	"github.com/hupe1980/pqflash/internal/cache"
	"github.com/hupe1980/pqflash/internal/layout"
	"github.com/hupe1980/pqflash/internal/pq"
)

// visitFunc receives a node's stored coordinates and neighbors. Both alias
// scratch or cache memory and are only valid during the call.
type visitFunc func(id uint32, coords []byte, nbrs []uint32) error

// readNodes serves ids from snap when cached and reads the rest in one
// batch, one request per distinct sector. fn is called for every id.
func (ix *Index) readNodes(ctx context.Context, ids []uint32, snap *cache.Snapshot, s *queryScratch, st *QueryStats, fn visitFunc) error {
	s.misses = s.misses[:0]
	for _, id := range ids {
		if n, ok := snap.Get(id); ok && n.Coords != nil {
			st.CacheHits++
			if err := fn(id, n.Coords, n.Neighbors); err != nil {
				return err
			}
			continue
		}
		s.misses = append(s.misses, id)
	}
	if len(s.misses) == 0 {
		return nil
	}

	readLen := ix.hdr.ReadLen()
	clear(s.sectorIdx)
	s.reqs = s.reqs[:0]
	for _, id := range s.misses {
		off := ix.hdr.NodeSectorOffset(id)
		if _, ok := s.sectorIdx[off]; ok {
			continue
		}
		s.sectorIdx[off] = len(s.reqs)
		s.reqs = append(s.reqs, aio.Request{Offset: off, Buf: s.sectorBuf(len(s.reqs), readLen)})
	}

	start := time.Now()
	if err := ix.reader.Read(ctx, s.reqs); err != nil {
		return fmt.Errorf("read %d sectors: %w", len(s.reqs), err)
	}
	st.addIO(len(s.reqs), int64(len(s.reqs)*readLen), time.Since(start))

	for _, id := range s.misses {
		buf := s.reqs[s.sectorIdx[ix.hdr.NodeSectorOffset(id)]].Buf
		off := ix.hdr.NodeOffsetInSector(id)
		coords, nbrs, err := ix.hdr.DecodeNode(buf[off:off+int(ix.hdr.MaxNodeLen)], s.nbrs)
		if err != nil {
			return fmt.Errorf("node %d: %w", id, err)
		}
		s.nbrs = nbrs
		if err := fn(id, coords, nbrs); err != nil {
			return err
		}
	}
	return nil
}

// scoreNeighbors marks the unvisited neighbors in nbrs as visited and
// computes their PQ distances into s.newIDs and s.pqOut.
func (ix *Index) scoreNeighbors(s *queryScratch, st *QueryStats, nbrs []uint32) error {
	s.newIDs = s.newIDs[:0]
	s.codes = s.codes[:0]
	for _, nb := range nbrs {
		if uint64(nb) >= ix.hdr.NumPoints {
			return fmt.Errorf("%w: neighbor %d out of range", layout.ErrInvalidFormat, nb)
		}
		if !s.visited.Visit(nb) {
			continue
		}
		s.newIDs = append(s.newIDs, nb)
		s.codes = append(s.codes, ix.code(nb)...)
	}
	if len(s.newIDs) == 0 {
		return nil
	}
	if cap(s.pqOut) < len(s.newIDs) {
		s.pqOut = make([]float32, len(s.newIDs))
	}
	s.pqOut = s.pqOut[:len(s.newIDs)]
	pq.Lookup(s.pqDists, s.codes, ix.res.Table.NumChunks(), s.pqOut)
	st.NumPQ += len(s.newIDs)
	return nil
}

// entryPoint picks the medoid whose centroid is nearest the query, or the
// medoid with the smallest PQ distance when there are no centroids.
func (ix *Index) entryPoint(s *queryScratch) uint32 {
	medoids := ix.hdr.Medoids
	if len(medoids) == 1 {
		return medoids[0]
	}
	best, bestDist := 0, float32(0)
	cdim := int(ix.hdr.CentroidDim)
	for i, m := range medoids {
		var d float32
		if cdim > 0 {
			d = distance.SquaredL2(s.q.vec[:cdim], ix.hdr.Centroids[i*cdim:(i+1)*cdim])
		} else {
			d = ix.pqDistance(s, m)
		}
		if i == 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return medoids[best]
}
