package testutil

import (
	"math"
	"sort"

	"github.com/hupe1980/pqflash/distance"
)

// Neighbor is a ground-truth result. Score uses the reported convention:
// squared L2 distance for L2, inner product or cosine similarity otherwise.
type Neighbor struct {
	ID    uint32
	Score float32
}

// Score returns the reported score of v for query q under m.
func Score(m distance.Metric, q, v []float32) float32 {
	switch m {
	case distance.MetricInnerProduct:
		return distance.Dot(q, v)
	case distance.MetricCosine:
		nq, nv := distance.Norm(q), distance.Norm(v)
		if nq == 0 || nv == 0 {
			return -1
		}
		return distance.Dot(q, v) / (nq * nv)
	default:
		return distance.SquaredL2(q, v)
	}
}

// ExactTopK returns the k best vectors by brute force, ties by id.
// Ids for which excluded returns true are skipped.
func ExactTopK(q []float32, vectors [][]float32, k int, m distance.Metric, excluded func(uint32) bool) []Neighbor {
	all := make([]Neighbor, 0, len(vectors))
	for i, v := range vectors {
		if excluded != nil && excluded(uint32(i)) {
			continue
		}
		all = append(all, Neighbor{ID: uint32(i), Score: Score(m, q, v)})
	}
	higher := m.HigherIsBetter()
	sort.Slice(all, func(a, b int) bool {
		x, y := all[a], all[b]
		if x.Score != y.Score {
			if higher {
				return x.Score > y.Score
			}
			return x.Score < y.Score
		}
		return x.ID < y.ID
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// IDs returns the ids of ns in order.
func IDs(ns []Neighbor) []uint32 {
	out := make([]uint32, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

// Recall returns |approx ∩ truth| / |truth|.
func Recall(truth []Neighbor, approx []uint32) float64 {
	if len(truth) == 0 {
		if len(approx) == 0 {
			return 1
		}
		return 0
	}
	set := make(map[uint32]struct{}, len(truth))
	for _, n := range truth {
		set[n.ID] = struct{}{}
	}
	hits := 0
	for _, id := range approx {
		if _, ok := set[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}

// MaxNorm returns the largest L2 norm in vectors.
func MaxNorm(vectors [][]float32) float32 {
	var m float64
	for _, v := range vectors {
		m = math.Max(m, float64(distance.Norm(v)))
	}
	return float32(m)
}
