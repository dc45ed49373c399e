package binio

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	m := &Matrix{Rows: 2, Dim: 3, Data: []float32{1, 2, 3, 4, 5, 6}}
	path := filepath.Join(t.TempDir(), "q.bin")
	require.NoError(t, WriteFile(path, m))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, []float32{4, 5, 6}, got.Row(1))
}

func TestRead_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &Matrix{Rows: 1, Dim: 2, Data: []float32{1, 2}}))

	_, err := Read(bytes.NewReader(buf.Bytes()[:10]))
	assert.ErrorIs(t, err, ErrFormat)

	err = Write(&buf, &Matrix{Rows: 2, Dim: 2, Data: []float32{1}})
	assert.ErrorIs(t, err, ErrFormat)
}
