package kmeans

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"github.com/hupe1980/pqflash/distance"
)

// ErrNoData is returned when Train is called without vectors.
var ErrNoData = errors.New("kmeans: no training vectors")

// Config controls a training run. Zero values pick defaults.
type Config struct {
	// K is the number of centers. Defaults to 256.
	K int
	// MaxIter bounds the Lloyd iterations. Defaults to 10.
	MaxIter int
	// MaxSamples caps the number of training vectors. Defaults to 4096.
	MaxSamples int
	// Seed seeds initialization and empty-cluster repair.
	Seed int64
}

func (c *Config) defaults() {
	if c.K <= 0 {
		c.K = 256
	}
	if c.MaxIter <= 0 {
		c.MaxIter = 10
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = 4096
	}
}

// Train clusters the flat dim-wide rows of data into cfg.K centers and
// returns them flattened (K * dim). With fewer rows than centers, rows are
// reused cyclically so the table is always full.
func Train(ctx context.Context, data []float32, dim int, cfg Config) ([]float32, error) {
	cfg.defaults()
	if dim <= 0 || len(data) < dim {
		return nil, ErrNoData
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic training
	data = sample(data, dim, cfg.MaxSamples, rng)
	n := len(data) / dim

	centers := make([]float32, cfg.K*dim)
	perm := rng.Perm(n)
	for j := range cfg.K {
		src := perm[j%n]
		copy(centers[j*dim:(j+1)*dim], data[src*dim:(src+1)*dim])
	}
	if n <= cfg.K {
		return centers, nil
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	sums := make([]float64, cfg.K*dim)
	counts := make([]int, cfg.K)

	for range cfg.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false
		for i := range n {
			c, _ := Nearest(data[i*dim:(i+1)*dim], centers, dim)
			if assign[i] != c {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		clear(sums)
		clear(counts)
		for i, c := range assign {
			row := data[i*dim : (i+1)*dim]
			for d, x := range row {
				sums[c*dim+d] += float64(x)
			}
			counts[c]++
		}
		for j := range cfg.K {
			center := centers[j*dim : (j+1)*dim]
			if counts[j] == 0 {
				// Empty clusters restart on a random row.
				src := rng.Intn(n)
				copy(center, data[src*dim:(src+1)*dim])
				continue
			}
			inv := 1 / float64(counts[j])
			for d := range center {
				center[d] = float32(sums[j*dim+d] * inv)
			}
		}
	}
	return centers, nil
}

// Nearest returns the index of the center closest to v and its squared L2
// distance.
func Nearest(v, centers []float32, dim int) (int, float32) {
	best, bestDist := -1, float32(math.MaxFloat32)
	for j := 0; (j+1)*dim <= len(centers); j++ {
		if d := distance.SquaredL2(v, centers[j*dim:(j+1)*dim]); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best, bestDist
}

// sample returns at most maxRows rows of data chosen uniformly.
func sample(data []float32, dim, maxRows int, rng *rand.Rand) []float32 {
	n := len(data) / dim
	if n <= maxRows {
		return data[:n*dim]
	}
	out := make([]float32, 0, maxRows*dim)
	for _, i := range rng.Perm(n)[:maxRows] {
		out = append(out, data[i*dim:(i+1)*dim]...)
	}
	return out
}
