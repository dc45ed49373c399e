package diskann

import (
	"context"

	"github.com/hupe1980/pqflash/distance"
)

// GetVectorByIDs returns the stored vectors of ids in query space. Cached
// nodes are served from memory; the rest are read in sector-grouped batches.
// Disk-PQ indexes return the inflated approximation.
func (ix *Index) GetVectorByIDs(ctx context.Context, ids []uint32) ([][]float32, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if uint64(id) >= ix.hdr.NumPoints {
			return nil, &ErrIDOutOfRange{ID: id, NumPoints: ix.hdr.NumPoints}
		}
	}

	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	s := lease.Value()
	var st QueryStats

	out := make([][]float32, len(ids))
	pos := make(map[uint32][]int, len(ids))
	uniq := make([]uint32, 0, len(ids))
	for i, id := range ids {
		if _, ok := pos[id]; !ok {
			uniq = append(uniq, id)
		}
		pos[id] = append(pos[id], i)
	}

	decode := func(id uint32, coords []byte, _ []uint32) error {
		v := make([]float32, ix.hdr.Dim)
		ix.decodeCoords(coords, v)
		v = ix.deAugment(v)
		for _, i := range pos[id] {
			out[i] = v
		}
		return nil
	}
	snap := ix.nodeCache.Load()
	for i := 0; i < len(uniq); i += cacheBatch {
		if err := ix.readNodes(ctx, uniq[i:min(i+cacheBatch, len(uniq))], snap, s, &st, decode); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// deAugment maps a stored-space vector back to query space. Inner-product
// vectors drop the augmentation and are rescaled by the maximum base norm.
func (ix *Index) deAugment(v []float32) []float32 {
	if ix.hdr.Metric != distance.MetricInnerProduct {
		return v
	}
	v = v[:ix.queryDim]
	for i := range v {
		v[i] *= ix.hdr.MaxBaseNorm
	}
	return v
}
