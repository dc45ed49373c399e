package pq

import (
	"errors"
	"fmt"

	"github.com/viterin/vek/vek32"

	"github.com/hupe1980/pqflash/distance"
)

// NumCentroids is the number of pivots per chunk; codes are one byte per chunk.
const NumCentroids = 256

// ErrInvalidTable is returned for inconsistent codebook geometry.
var ErrInvalidTable = errors.New("pq: invalid table")

// Table is an immutable PQ codebook.
type Table struct {
	dim      int
	offsets  []uint32
	centroid []float32
	// chunks[c] holds 256 contiguous pivots of chunk c's width.
	chunks [][]float32
}

// New builds a table from full-width pivots (NumCentroids×dim, row-major),
// the global centroid and the numChunks+1 chunk offsets.
func New(dim int, pivots, centroid []float32, offsets []uint32) (*Table, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dim %d", ErrInvalidTable, dim)
	}
	if len(pivots) != NumCentroids*dim {
		return nil, fmt.Errorf("%w: pivots len %d, want %d", ErrInvalidTable, len(pivots), NumCentroids*dim)
	}
	if len(centroid) != dim {
		return nil, fmt.Errorf("%w: centroid len %d, want %d", ErrInvalidTable, len(centroid), dim)
	}
	if len(offsets) < 2 || offsets[0] != 0 || int(offsets[len(offsets)-1]) != dim {
		return nil, fmt.Errorf("%w: chunk offsets must span [0,%d]", ErrInvalidTable, dim)
	}

	t := &Table{
		dim:      dim,
		offsets:  append([]uint32(nil), offsets...),
		centroid: append([]float32(nil), centroid...),
		chunks:   make([][]float32, len(offsets)-1),
	}
	for c := range t.chunks {
		lo, hi := int(offsets[c]), int(offsets[c+1])
		if hi <= lo {
			return nil, fmt.Errorf("%w: empty chunk %d", ErrInvalidTable, c)
		}
		w := hi - lo
		sub := make([]float32, NumCentroids*w)
		for j := 0; j < NumCentroids; j++ {
			copy(sub[j*w:(j+1)*w], pivots[j*dim+lo:j*dim+hi])
		}
		t.chunks[c] = sub
	}
	return t, nil
}

// Dim returns the vector dimensionality the table was trained on.
func (t *Table) Dim() int { return t.dim }

// NumChunks returns the number of code bytes per vector.
func (t *Table) NumChunks() int { return len(t.chunks) }

// Offsets returns the chunk offsets. The slice must not be modified.
func (t *Table) Offsets() []uint32 { return t.offsets }

// Centroid returns the global centroid. The slice must not be modified.
func (t *Table) Centroid() []float32 { return t.centroid }

// Pivots returns the full-width pivots, NumCentroids×Dim row-major.
func (t *Table) Pivots() []float32 {
	out := make([]float32, NumCentroids*t.dim)
	for c, sub := range t.chunks {
		lo, hi := int(t.offsets[c]), int(t.offsets[c+1])
		w := hi - lo
		for j := 0; j < NumCentroids; j++ {
			copy(out[j*t.dim+lo:j*t.dim+hi], sub[j*w:(j+1)*w])
		}
	}
	return out
}

// TableLen returns the length of a per-query distance table.
func (t *Table) TableLen() int { return len(t.chunks) * NumCentroids }

// Populate fills dst[c*256+j] with the squared distance between pivot j of
// chunk c and the centered query sub-vector.
func (t *Table) Populate(query, dst []float32) {
	residual := vek32.Sub(query[:t.dim], t.centroid)
	for c, sub := range t.chunks {
		lo, hi := int(t.offsets[c]), int(t.offsets[c+1])
		w := hi - lo
		q := residual[lo:hi]
		row := dst[c*NumCentroids : (c+1)*NumCentroids]
		for j := range row {
			row[j] = distance.SquaredL2(sub[j*w:(j+1)*w], q)
		}
	}
}

// Distance returns the approximate distance of one code.
func (t *Table) Distance(dists []float32, code []byte) float32 {
	var sum float32
	for c, b := range code[:len(t.chunks)] {
		sum += dists[c*NumCentroids+int(b)]
	}
	return sum
}

// Inflate reconstructs the vector encoded by code into out.
func (t *Table) Inflate(code []byte, out []float32) {
	for c, sub := range t.chunks {
		lo, hi := int(t.offsets[c]), int(t.offsets[c+1])
		w := hi - lo
		j := int(code[c])
		copy(out[lo:hi], sub[j*w:(j+1)*w])
	}
	vek32.Add_Inplace(out[:t.dim], t.centroid)
}

// Encode writes the nearest-pivot code of v into code.
func (t *Table) Encode(v []float32, code []byte) {
	residual := vek32.Sub(v[:t.dim], t.centroid)
	for c, sub := range t.chunks {
		lo, hi := int(t.offsets[c]), int(t.offsets[c+1])
		w := hi - lo
		q := residual[lo:hi]
		best, bestDist := 0, float32(0)
		for j := 0; j < NumCentroids; j++ {
			d := distance.SquaredL2(sub[j*w:(j+1)*w], q)
			if j == 0 || d < bestDist {
				best, bestDist = j, d
			}
		}
		code[c] = byte(best)
	}
}

// Lookup computes approximate distances for len(out) consecutive codes.
func Lookup(dists []float32, codes []byte, numChunks int, out []float32) {
	for i := range out {
		code := codes[i*numChunks : (i+1)*numChunks]
		var sum float32
		for c, b := range code {
			sum += dists[c*NumCentroids+int(b)]
		}
		out[i] = sum
	}
}
