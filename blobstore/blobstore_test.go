package blobstore

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pqflash/internal/cache"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := t.Context()

	_, err := s.Open(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Put(ctx, "idx_disk.index", []byte("0123456789")))
	require.NoError(t, s.Put(ctx, "idx_pq.bin", []byte("pq")))
	require.NoError(t, s.Put(ctx, "other", []byte("x")))

	b, err := s.Open(ctx, "idx_disk.index")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Size())

	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "6789", string(buf))

	n, err = b.ReadAt(ctx, buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, b.Close())

	names, err := s.List(ctx, "idx_")
	require.NoError(t, err)
	assert.Equal(t, []string{"idx_disk.index", "idx_pq.bin"}, names)

	data, err := ReadFile(ctx, s, "idx_pq.bin")
	require.NoError(t, err)
	assert.Equal(t, "pq", string(data))

	require.NoError(t, s.Delete(ctx, "other"))
	_, err = s.Open(ctx, "other")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore_Pread(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_Mmap(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir(), WithMmap(true)))
}

func TestMemoryStore_CancelledRead(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put(t.Context(), "a", []byte("abc")))
	b, err := s.Open(t.Context(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = b.ReadAt(ctx, make([]byte, 1), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingBlob struct {
	Blob
	reads atomic.Int64
}

func (c *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	c.reads.Add(1)
	return c.Blob.ReadAt(ctx, p, off)
}

func TestCachingBlob(t *testing.T) {
	data := make([]byte, 10*100+50)
	for i := range data {
		data[i] = byte(i % 251)
	}
	mem := NewMemoryStore()
	require.NoError(t, mem.Put(t.Context(), "blob", data))
	inner, err := mem.Open(t.Context(), "blob")
	require.NoError(t, err)

	counting := &countingBlob{Blob: inner}
	bc := cache.NewLRUBlockCache(1<<20, nil)
	b := NewCachingBlob(counting, "blob", bc, 100)

	buf := make([]byte, 250)
	n, err := b.ReadAt(t.Context(), buf, 120)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, data[120:370], buf)
	// One contiguous run of blocks 1..3.
	assert.Equal(t, int64(1), counting.reads.Load())

	// Fully cached.
	n, err = b.ReadAt(t.Context(), buf[:50], 150)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[150:200], buf[:50])
	assert.Equal(t, int64(1), counting.reads.Load())

	// Tail block is partial.
	tail := make([]byte, 100)
	n, err = b.ReadAt(t.Context(), tail, 1000)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[1000:], tail[:50])

	_, err = b.ReadAt(t.Context(), tail, 5000)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCachingStore_InvalidatesOnPut(t *testing.T) {
	mem := NewMemoryStore()
	s := NewCachingStore(mem, cache.NewLRUBlockCache(1<<20, nil), 4)
	ctx := t.Context()

	require.NoError(t, s.Put(ctx, "a", []byte("aaaa")))
	got, err := ReadFile(ctx, s, "a")
	require.NoError(t, err)
	assert.Equal(t, "aaaa", string(got))

	require.NoError(t, s.Put(ctx, "a", []byte("bbbb")))
	got, err = ReadFile(ctx, s, "a")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", string(got))

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
	require.NoError(t, s.Delete(ctx, "a"))
}
