package kmeans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrain(t *testing.T) {
	// Two blobs around (0,0) and (10,10).
	data := []float32{
		0, 0, 0, 1, 1, 0, 1, 1,
		10, 10, 10, 11, 11, 10, 11, 11,
	}
	centers, err := Train(t.Context(), data, 2, Config{K: 2, MaxIter: 50, Seed: 1})
	require.NoError(t, err)
	require.Len(t, centers, 4)

	a, _ := Nearest([]float32{0.5, 0.5}, centers, 2)
	b, _ := Nearest([]float32{10.5, 10.5}, centers, 2)
	assert.NotEqual(t, a, b)

	_, d := Nearest([]float32{0.5, 0.5}, centers, 2)
	assert.InDelta(t, 0, d, 1e-6)
}

func TestTrain_FewerRowsThanCenters(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	centers, err := Train(t.Context(), data, 2, Config{K: 8, Seed: 7})
	require.NoError(t, err)
	require.Len(t, centers, 16)

	for j := range 8 {
		c := centers[j*2 : j*2+2]
		assert.Contains(t, [][]float32{{1, 2}, {3, 4}, {5, 6}}, c)
	}
}

func TestTrain_Deterministic(t *testing.T) {
	data := make([]float32, 600)
	for i := range data {
		data[i] = float32((i * 37) % 101)
	}
	cfg := Config{K: 16, MaxSamples: 200, Seed: 42}
	a, err := Train(t.Context(), data, 3, cfg)
	require.NoError(t, err)
	b, err := Train(t.Context(), data, 3, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTrain_Errors(t *testing.T) {
	_, err := Train(t.Context(), nil, 4, Config{})
	assert.ErrorIs(t, err, ErrNoData)

	data := make([]float32, 2*300)
	for i := range data {
		data[i] = float32(i)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = Train(ctx, data, 2, Config{K: 4})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearest_Empty(t *testing.T) {
	idx, _ := Nearest([]float32{1}, nil, 1)
	assert.Equal(t, -1, idx)
}
