package diskann

import (
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/hupe1980/pqflash/internal/resource"
)

const (
	DefaultLSearch    = 100
	DefaultBeamWidth  = 4
	MaxBeamWidth      = 128
	DefaultMinLSearch = 100

	// FullPrecisionReorderMultiplier widens the candidates re-ranked with
	// reorder data to K times this value.
	FullPrecisionReorderMultiplier = 3
)

type options struct {
	logger          *slog.Logger
	rc              *resource.Controller
	numThreads      int
	maxInFlight     int
	bfsCacheNodes   int
	cacheList       []uint32
	visitRecency    int
	bruteForceLimit int
	taskHook        TaskHook
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResourceController charges node cache memory, background cache tasks
// and disk reads to rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithNumThreads sets the number of query scratch slots, which bounds the
// number of concurrent queries. Defaults to GOMAXPROCS.
func WithNumThreads(n int) Option {
	return func(o *options) { o.numThreads = n }
}

// WithMaxInFlight bounds concurrent reads within one batch. Defaults to MaxBeamWidth.
func WithMaxInFlight(n int) Option {
	return func(o *options) { o.maxInFlight = n }
}

// WithBFSCache caches the n nodes closest to the entry points at open.
func WithBFSCache(n int) Option {
	return func(o *options) { o.bfsCacheNodes = n }
}

// WithCacheList caches the given nodes at open. It takes precedence over WithBFSCache.
func WithCacheList(ids []uint32) Option {
	return func(o *options) { o.cacheList = ids }
}

// WithVisitTracking counts the nodes every query expands, remembering the
// last search of up to recency nodes. See Index.HotNodes.
func WithVisitTracking(recency int) Option {
	return func(o *options) { o.visitRecency = recency }
}

// WithBruteForceLimit bounds the admissible nodes scanned when a filtered
// search falls back to brute force. Defaults to all nodes.
func WithBruteForceLimit(n int) Option {
	return func(o *options) { o.bruteForceLimit = n }
}

// TaskHook observes the end of a cache task before its state turns
// terminal. nodes is the node cache size after the task.
type TaskHook func(id string, nodes int, elapsed time.Duration, err error)

// WithCacheTaskHook calls fn when a GenerateCacheListAsync task ends.
func WithCacheTaskHook(fn TaskHook) Option {
	return func(o *options) { o.taskHook = fn }
}

func defaultOptions() options {
	return options{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		numThreads:  runtime.GOMAXPROCS(0),
		maxInFlight: MaxBeamWidth,
	}
}

// Result is one search hit. Distance is the squared L2 distance for L2
// (smaller is better), the inner product or the cosine similarity otherwise
// (larger is better).
type Result struct {
	ID       uint32
	Distance float32
}

// SearchParams configures a batch search.
type SearchParams struct {
	K int
	// LSearch is the search-list width, at least K. Defaults to max(K, 100).
	LSearch int
	// BeamWidth is the number of reads per step. Defaults to 4.
	BeamWidth int
	Filter    Filter
	// UseReorderData re-ranks K*FullPrecisionReorderMultiplier candidates
	// with the full-precision reorder vectors when the index has them.
	UseReorderData bool
	// IOLimit stops the traversal after this many sector reads (0 = none).
	IOLimit int
	Stats   *QueryStats
	Trace   *Trace
}

func (p *SearchParams) normalize() error {
	if p.K <= 0 {
		return ErrInvalidK
	}
	if p.LSearch == 0 {
		p.LSearch = max(p.K, DefaultLSearch)
	}
	if p.LSearch < p.K {
		return invalidParams("l_search %d smaller than k %d", p.LSearch, p.K)
	}
	return normalizeBeam(&p.BeamWidth)
}

// RangeParams configures a range search.
type RangeParams struct {
	// Radius bounds accepted results: L2 accepts RangeFilter <= d < Radius,
	// inner product and cosine accept Radius < s <= RangeFilter.
	Radius float32
	// RangeFilter is the inner bound when HasRangeFilter is set. Otherwise
	// it is 0 for L2 and +Inf for similarities.
	RangeFilter    float32
	HasRangeFilter bool
	// MinLSearch is the initial list width (default 100), doubled up to
	// MaxLSearch (default 8*MinLSearch) while half the list is in range.
	MinLSearch int
	MaxLSearch int
	BeamWidth  int
	Filter     Filter
	Stats      *QueryStats
}

func (p *RangeParams) normalize() error {
	if p.MinLSearch == 0 {
		p.MinLSearch = DefaultMinLSearch
	}
	if p.MaxLSearch == 0 {
		p.MaxLSearch = 8 * p.MinLSearch
	}
	if p.MinLSearch < 0 || p.MaxLSearch < p.MinLSearch {
		return invalidParams("l_search range [%d, %d]", p.MinLSearch, p.MaxLSearch)
	}
	return normalizeBeam(&p.BeamWidth)
}

// IteratorParams configures a streaming search.
type IteratorParams struct {
	LSearch   int
	BeamWidth int
	Filter    Filter
	// PQHeadroom is how many confirmed PQ results must be ahead of the
	// emitted exact results before the next one is emitted. Defaults to LSearch.
	PQHeadroom int
	// FullCapacity bounds the pending exact results. Defaults to NumPoints.
	FullCapacity int
}

// SampleCacheParams configures GenerateCacheListAsync.
type SampleCacheParams struct {
	LSearch   int
	BeamWidth int
	// NumNodes is the number of most visited nodes to cache. Must be positive.
	NumNodes int
}

func normalizeBeam(w *int) error {
	if *w == 0 {
		*w = DefaultBeamWidth
	}
	if *w < 0 || *w > MaxBeamWidth {
		return invalidParams("beam width %d outside [1, %d]", *w, MaxBeamWidth)
	}
	return nil
}
