package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would exceed the memory limit.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes caps reserved cache memory. 0 means tracking only.
	MemoryLimitBytes int64

	// MaxBackgroundTasks bounds concurrently running background tasks.
	// Defaults to 1.
	MaxBackgroundTasks int64

	// IOBytesPerSec limits block-read throughput. 0 means unlimited.
	IOBytesPerSec int64
}

// Stats is a point-in-time snapshot of controller usage.
type Stats struct {
	MemoryUsed  int64
	MemoryLimit int64
	IOWaits     int64
}

// Controller manages memory, background slots and IO throughput.
type Controller struct {
	cfg Config

	mem     *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	bg *semaphore.Weighted

	io      *rate.Limiter
	ioWaits atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundTasks <= 0 {
		cfg.MaxBackgroundTasks = 1
	}
	c := &Controller{
		cfg: cfg,
		bg:  semaphore.NewWeighted(cfg.MaxBackgroundTasks),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.mem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOBytesPerSec > 0 {
		c.io = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSec), int(cfg.IOBytesPerSec))
	}
	return c
}

// AcquireMemory reserves bytes or fails immediately with ErrMemoryLimitExceeded.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.mem != nil && !c.mem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns a reservation made with AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.mem != nil {
		c.mem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireBackground blocks until a background slot is free or ctx is done.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bg.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bg.TryAcquire(1)
}

// ReleaseBackground frees a background slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bg.Release(1)
}

// AcquireIO waits until the limiter admits bytes. Requests larger than the
// burst are admitted in burst-sized pieces.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.io == nil || bytes <= 0 {
		return nil
	}
	burst := c.io.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if c.io.Tokens() < float64(n) {
			c.ioWaits.Add(1)
		}
		if err := c.io.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// Stats returns current usage.
func (c *Controller) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		MemoryUsed:  c.memUsed.Load(),
		MemoryLimit: c.cfg.MemoryLimitBytes,
		IOWaits:     c.ioWaits.Load(),
	}
}
