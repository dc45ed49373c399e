package pqflash

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pqflash/blobstore"
	"github.com/hupe1980/pqflash/index/diskann"
)

var (
	// ErrNotFound is returned when an index blob does not exist.
	ErrNotFound = blobstore.ErrNotFound
	// ErrInvalidFormat is returned when an index blob is malformed.
	ErrInvalidFormat = diskann.ErrInvalidFormat
	// ErrClosed is returned by operations on a closed index.
	ErrClosed = diskann.ErrClosed
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = diskann.ErrInvalidK
	// ErrInvalidParams is returned for inconsistent search parameters.
	ErrInvalidParams = diskann.ErrInvalidParams
	// ErrTaskBusy is returned when a cache build is already running.
	ErrTaskBusy = diskann.ErrTaskBusy
	// ErrTaskStopped is the outcome of a cache build stopped on request.
	ErrTaskStopped = diskann.ErrTaskStopped
)

// ErrDimensionMismatch indicates a query of the wrong dimensionality.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrIDOutOfRange indicates a node id the index does not contain.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrIDOutOfRange struct {
	ID        uint32
	NumPoints uint64
	cause     error
}

func (e *ErrIDOutOfRange) Error() string {
	return fmt.Sprintf("id %d out of range [0, %d)", e.ID, e.NumPoints)
}

func (e *ErrIDOutOfRange) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *diskann.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var ir *diskann.ErrIDOutOfRange
	if errors.As(err, &ir) {
		return &ErrIDOutOfRange{ID: ir.ID, NumPoints: ir.NumPoints, cause: err}
	}

	return err
}
