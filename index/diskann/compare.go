package diskann

import (
	"github.com/hupe1980/pqflash/distance"
	"github.com/hupe1980/pqflash/internal/layout"
)

// query is a prepared query vector.
type query struct {
	// raw is the query as given.
	raw []float32
	// vec is the stored-space query: normalized for cosine, normalized and
	// augmented with a zero for inner product.
	vec []float32
	// norm is the norm of raw, used to rescale inner products.
	norm float32
}

func (ix *Index) prepare(v []float32, q *query) error {
	if len(v) != ix.queryDim {
		return &ErrDimensionMismatch{Expected: ix.queryDim, Actual: len(v)}
	}
	q.raw = append(q.raw[:0], v...)
	copy(q.vec, v)

	switch ix.hdr.Metric {
	case distance.MetricInnerProduct:
		q.norm = distance.NormalizeL2InPlace(q.vec[:ix.queryDim])
		q.vec[ix.queryDim] = 0
	case distance.MetricCosine:
		q.norm = distance.NormalizeL2InPlace(q.vec)
	default:
		q.norm = distance.Norm(v)
	}
	return nil
}

// decodeCoords converts stored coordinates to float32, inflating disk-PQ codes.
func (ix *Index) decodeCoords(coords []byte, out []float32) {
	if ix.res.DiskTable != nil {
		ix.res.DiskTable.Inflate(coords, out)
		return
	}
	layout.DecodeCoords(ix.hdr.DataType, coords, out)
}

// exactDistance returns the internal distance of a node from its stored coordinates.
func (ix *Index) exactDistance(s *queryScratch, id uint32, coords []byte) float32 {
	ix.decodeCoords(coords, s.coords)
	return ix.compare(&s.q, id, s.coords)
}

// compare returns the internal distance between q and the stored-space
// vector v of node id. Smaller is better.
func (ix *Index) compare(q *query, id uint32, v []float32) float32 {
	if ix.hdr.Metric == distance.MetricCosine {
		norm := ix.baseNorm(id, v)
		if norm == 0 {
			return 2
		}
		return 1 - distance.Dot(q.vec, v)/norm
	}
	return distance.SquaredL2(q.vec, v)
}

func (ix *Index) baseNorm(id uint32, v []float32) float32 {
	if norms := ix.res.BaseNorms; int(id) < len(norms) {
		return norms[id]
	}
	return distance.Norm(v)
}

// score converts an internal distance to the reported one.
func (ix *Index) score(q *query, d float32) float32 {
	switch ix.hdr.Metric {
	case distance.MetricInnerProduct:
		return -(d/2 - 1) * ix.hdr.MaxBaseNorm * q.norm
	case distance.MetricCosine:
		return 1 - d
	default:
		return d
	}
}

// code returns the resident PQ code of id.
func (ix *Index) code(id uint32) []byte {
	n := ix.res.Table.NumChunks()
	return ix.res.Codes[int(id)*n : (int(id)+1)*n]
}

func (ix *Index) pqDistance(s *queryScratch, id uint32) float32 {
	return ix.res.Table.Distance(s.pqDists, ix.code(id))
}
