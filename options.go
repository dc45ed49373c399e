package pqflash

import (
	"log/slog"

	"github.com/hupe1980/pqflash/index/diskann"
)

// BlockCacheKind selects the block cache placed in front of the index blob.
type BlockCacheKind int

const (
	// BlockCacheNone reads every sector from the store.
	BlockCacheNone BlockCacheKind = iota
	// BlockCacheRistretto admits blocks by TinyLFU frequency.
	BlockCacheRistretto
	// BlockCacheLRU evicts the least recently used block. Its memory is
	// charged to the resource limits.
	BlockCacheLRU
)

// ResourceLimits bounds what an open index may consume. Zero values mean
// unlimited, except MaxBackgroundTasks which defaults to 1.
type ResourceLimits struct {
	// MemoryLimitBytes caps node cache and LRU block cache memory.
	MemoryLimitBytes int64
	// MaxBackgroundTasks bounds concurrently running cache builds.
	MaxBackgroundTasks int64
	// IOBytesPerSec limits sector read throughput.
	IOBytesPerSec int64
}

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	limits           ResourceLimits
	blockCacheKind   BlockCacheKind
	blockCacheBytes  int64
	blockSize        int64
	mmap             bool
	index            []diskann.Option
}

// Option configures Open.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pqflash.BasicMetricsCollector{}
//	db, _ := pqflash.OpenLocal(ctx, "./index", "sift", pqflash.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceLimits bounds memory, background builds and read throughput.
func WithResourceLimits(l ResourceLimits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithBlockCache caches index sectors read from the store in a TinyLFU
// cache of maxBytes. Useful for object stores, where every read is a request.
func WithBlockCache(maxBytes int64) Option {
	return func(o *options) {
		o.blockCacheKind = BlockCacheRistretto
		o.blockCacheBytes = maxBytes
	}
}

// WithLRUBlockCache caches index sectors in an LRU cache of maxBytes.
func WithLRUBlockCache(maxBytes int64) Option {
	return func(o *options) {
		o.blockCacheKind = BlockCacheLRU
		o.blockCacheBytes = maxBytes
	}
}

// WithBlockSize sets the block cache granularity. Defaults to one sector.
func WithBlockSize(n int64) Option {
	return func(o *options) {
		o.blockSize = n
	}
}

// WithMmap makes OpenLocal map index files instead of reading them with pread.
func WithMmap(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

// WithNumThreads bounds the number of concurrent queries.
// Defaults to GOMAXPROCS.
func WithNumThreads(n int) Option {
	return func(o *options) {
		o.index = append(o.index, diskann.WithNumThreads(n))
	}
}

// WithMaxInFlight bounds concurrent sector reads within one beam step.
func WithMaxInFlight(n int) Option {
	return func(o *options) {
		o.index = append(o.index, diskann.WithMaxInFlight(n))
	}
}

// WithBFSCache caches the n nodes closest to the entry points at open.
func WithBFSCache(n int) Option {
	return func(o *options) {
		o.index = append(o.index, diskann.WithBFSCache(n))
	}
}

// WithCacheList caches the given nodes at open. It takes precedence over
// WithBFSCache. See ReadCacheList.
func WithCacheList(ids []uint32) Option {
	return func(o *options) {
		o.index = append(o.index, diskann.WithCacheList(ids))
	}
}

// WithVisitTracking counts the nodes every query expands so HotNodes can
// report them. recency bounds the nodes remembered from the last search.
func WithVisitTracking(recency int) Option {
	return func(o *options) {
		o.index = append(o.index, diskann.WithVisitTracking(recency))
	}
}

// WithBruteForceLimit bounds the nodes scanned when a filtered search
// falls back to brute force.
func WithBruteForceLimit(n int) Option {
	return func(o *options) {
		o.index = append(o.index, diskann.WithBruteForceLimit(n))
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
