package diskann

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pqflash/internal/layout"
	"github.com/hupe1980/pqflash/internal/taskstate"
)

var (
	// ErrInvalidFormat is wrapped by every load-time structural error.
	ErrInvalidFormat = layout.ErrInvalidFormat
	// ErrClosed is returned by operations on a closed index or iterator.
	ErrClosed = errors.New("index closed")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
	// ErrInvalidParams is returned for inconsistent search parameters.
	ErrInvalidParams = errors.New("invalid search parameters")
	// ErrTaskBusy is returned when a cache task is already running.
	ErrTaskBusy = taskstate.ErrBusy
	// ErrTaskStopped is the outcome of a cache task stopped on request.
	ErrTaskStopped = errors.New("cache task stopped")
)

// ErrDimensionMismatch indicates a query of the wrong dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrIDOutOfRange indicates a node id outside [0, NumPoints).
type ErrIDOutOfRange struct {
	ID        uint32
	NumPoints uint64
}

func (e *ErrIDOutOfRange) Error() string {
	return fmt.Sprintf("id %d out of range [0, %d)", e.ID, e.NumPoints)
}

func invalidParams(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}
