// Package aio is the block-read service boundary of the search engine.
//
// The engine hands a Reader a batch of (offset, buffer) requests and waits
// for the whole batch; implementations are free to serve the requests
// concurrently. BlobReader serves them from a blob with bounded in-flight
// reads and optional byte-rate limiting.
package aio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pqflash/internal/resource"
)

// ErrShortRead is returned when a request could not be filled completely.
var ErrShortRead = errors.New("short read")

// Request is one aligned read.
type Request struct {
	Offset int64
	Buf    []byte
}

// Reader fills every request of a batch or fails the batch.
type Reader interface {
	Read(ctx context.Context, reqs []Request) error
}

// ReaderAt is the context-aware random-access read a blob provides.
type ReaderAt interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
}

// Stats counts reads served by a BlobReader.
type Stats struct {
	Requests int64
	Bytes    int64
	Batches  int64
}

// BlobReader serves request batches from a ReaderAt.
type BlobReader struct {
	src         ReaderAt
	rc          *resource.Controller
	maxInFlight int

	requests atomic.Int64
	bytes    atomic.Int64
	batches  atomic.Int64
}

// Option configures a BlobReader.
type Option func(*BlobReader)

// WithMaxInFlight bounds concurrent reads per batch. Defaults to 16.
func WithMaxInFlight(n int) Option {
	return func(r *BlobReader) {
		if n > 0 {
			r.maxInFlight = n
		}
	}
}

// WithResourceController applies rc's IO rate limit to every read.
func WithResourceController(rc *resource.Controller) Option {
	return func(r *BlobReader) { r.rc = rc }
}

// NewBlobReader returns a Reader over src.
func NewBlobReader(src ReaderAt, optFns ...Option) *BlobReader {
	r := &BlobReader{src: src, maxInFlight: 16}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// Read issues the batch concurrently and waits for all of it.
func (r *BlobReader) Read(ctx context.Context, reqs []Request) error {
	if len(reqs) == 0 {
		return nil
	}
	r.batches.Add(1)
	if len(reqs) == 1 {
		return r.readOne(ctx, reqs[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxInFlight)
	for _, req := range reqs {
		g.Go(func() error { return r.readOne(gctx, req) })
	}
	return g.Wait()
}

func (r *BlobReader) readOne(ctx context.Context, req Request) error {
	if err := r.rc.AcquireIO(ctx, len(req.Buf)); err != nil {
		return err
	}
	n, err := r.src.ReadAt(ctx, req.Buf, req.Offset)
	r.requests.Add(1)
	r.bytes.Add(int64(n))
	if n == len(req.Buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %d of %d bytes at offset %d", ErrShortRead, n, len(req.Buf), req.Offset)
	}
	return fmt.Errorf("read %d bytes at offset %d: %w", len(req.Buf), req.Offset, err)
}

// Stats returns cumulative counters.
func (r *BlobReader) Stats() Stats {
	return Stats{
		Requests: r.requests.Load(),
		Bytes:    r.bytes.Load(),
		Batches:  r.batches.Load(),
	}
}
