package pqflash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/pqflash/blobstore"
	"github.com/hupe1980/pqflash/distance"
	"github.com/hupe1980/pqflash/index/diskann"
	"github.com/hupe1980/pqflash/internal/cache"
	"github.com/hupe1980/pqflash/internal/resource"
)

type (
	// Result is one search hit.
	Result = diskann.Result
	// QueryStats collects per-query counters.
	QueryStats = diskann.QueryStats
	// Trace records the nodes a search expanded.
	Trace = diskann.Trace
	// Filter excludes nodes from results.
	Filter = diskann.Filter
	// FilterFunc adapts a predicate to Filter.
	FilterFunc = diskann.FilterFunc
	// SearchParams configures KNNSearch.
	SearchParams = diskann.SearchParams
	// RangeParams configures RangeSearch.
	RangeParams = diskann.RangeParams
	// RangeResults holds the results of RangeSearchBatch.
	RangeResults = diskann.RangeResults
	// IteratorParams configures NewIterator and Stream.
	IteratorParams = diskann.IteratorParams
	// Iterator streams results across calls.
	Iterator = diskann.Iterator
	// SampleCacheParams configures GenerateCacheList.
	SampleCacheParams = diskann.SampleCacheParams
	// TaskState is the status of the background cache build.
	TaskState = diskann.TaskState
	// Compression selects the cache-list artifact codec.
	Compression = diskann.Compression
	// Metric is the distance an index was built for.
	Metric = distance.Metric
)

const (
	MetricL2           = distance.MetricL2
	MetricInnerProduct = distance.MetricInnerProduct
	MetricCosine       = distance.MetricCosine
)

const (
	CompressionNone = diskann.CompressionNone
	CompressionLZ4  = diskann.CompressionLZ4
	CompressionZSTD = diskann.CompressionZSTD
)

// DB is an open index with logging and metrics. It is safe for concurrent use.
type DB struct {
	ix         *diskann.Index
	prefix     string
	rc         *resource.Controller
	blockCache cache.BlockCache

	metrics MetricsCollector
	logger  *Logger
}

// OpenLocal opens the index stored under prefix in dir.
func OpenLocal(ctx context.Context, dir, prefix string, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	return Open(ctx, blobstore.NewLocalStore(dir, blobstore.WithMmap(o.mmap)), prefix, optFns...)
}

// Open opens the index stored under prefix in store.
func Open(ctx context.Context, store blobstore.Store, prefix string, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	db := &DB{
		prefix:  prefix,
		metrics: o.metricsCollector,
		logger:  o.logger.WithIndex(prefix),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:   o.limits.MemoryLimitBytes,
			MaxBackgroundTasks: o.limits.MaxBackgroundTasks,
			IOBytesPerSec:      o.limits.IOBytesPerSec,
		}),
	}

	switch o.blockCacheKind {
	case BlockCacheRistretto:
		bc, err := cache.NewRistrettoBlockCache(o.blockCacheBytes)
		if err != nil {
			return nil, fmt.Errorf("block cache: %w", err)
		}
		db.blockCache = bc
	case BlockCacheLRU:
		db.blockCache = cache.NewLRUBlockCache(o.blockCacheBytes, db.rc)
	}
	if db.blockCache != nil {
		store = blobstore.NewCachingStore(store, db.blockCache, o.blockSize)
	}

	indexOpts := append([]diskann.Option{
		diskann.WithLogger(o.logger.Logger),
		diskann.WithResourceController(db.rc),
		diskann.WithCacheTaskHook(db.onCacheTask),
	}, o.index...)

	start := time.Now()
	ix, err := diskann.Open(ctx, store, prefix, indexOpts...)
	if err != nil {
		if db.blockCache != nil {
			_ = db.blockCache.Close()
		}
		db.logger.LogOpen(ctx, prefix, 0, 0, err)
		return nil, translateError(err)
	}
	db.ix = ix
	db.logger.LogOpen(ctx, prefix, ix.NumPoints(), ix.Dim(), nil)
	if n := ix.CachedNodes(); n > 0 {
		db.metrics.RecordCacheBuild(n, time.Since(start), nil)
	}
	return db, nil
}

// Index returns the underlying engine.
func (db *DB) Index() *diskann.Index { return db.ix }

// NumPoints returns the number of indexed points, frozen points included.
func (db *DB) NumPoints() uint64 { return db.ix.NumPoints() }

// Dim returns the query dimensionality.
func (db *DB) Dim() int { return db.ix.Dim() }

// Metric returns the metric the index was built for.
func (db *DB) Metric() Metric { return db.ix.Metric() }

// CachedNodes returns the number of nodes in the node cache.
func (db *DB) CachedNodes() int { return db.ix.CachedNodes() }

// CachedIDs returns the ids in the node cache in ascending order.
func (db *DB) CachedIDs() []uint32 { return db.ix.CachedIDs() }

// Stats describes an open index.
type Stats struct {
	Prefix         string
	NumPoints      uint64
	Dim            int
	MaxDegree      int
	Metric         Metric
	Medoids        []uint32
	HasReorderData bool
	CachedNodes    int
	// ResidentBytes estimates the memory held by codes and caches.
	ResidentBytes int64
	// ReservedBytes is the memory charged to the resource limits.
	ReservedBytes int64
	ReadRequests  int64
	ReadBytes     int64
	// BlockCacheHits and BlockCacheMisses are zero without a block cache.
	BlockCacheHits   int64
	BlockCacheMisses int64
	CacheTask        TaskState
}

// Stats returns the geometry and counters of the index.
func (db *DB) Stats() Stats {
	requests, bytes := db.ix.ReadStats()
	st := Stats{
		Prefix:         db.prefix,
		NumPoints:      db.ix.NumPoints(),
		Dim:            db.ix.Dim(),
		MaxDegree:      db.ix.MaxDegree(),
		Metric:         db.ix.Metric(),
		Medoids:        db.ix.Medoids(),
		HasReorderData: db.ix.HasReorderData(),
		CachedNodes:    db.ix.CachedNodes(),
		ResidentBytes:  db.ix.CalSize(),
		ReservedBytes:  db.rc.MemoryUsage(),
		ReadRequests:   requests,
		ReadBytes:      bytes,
		CacheTask:      db.ix.CacheTaskState(),
	}
	if db.blockCache != nil {
		st.BlockCacheHits, st.BlockCacheMisses = db.blockCache.Stats()
	}
	return st
}

// KNNSearch returns the p.K nearest admissible nodes to query, best first.
func (db *DB) KNNSearch(ctx context.Context, query []float32, p SearchParams) ([]Result, error) {
	start := time.Now()
	caller := p.Stats
	var st QueryStats
	p.Stats = &st

	res, err := db.ix.Search(ctx, query, p)
	if caller != nil {
		mergeStats(caller, &st)
	}
	db.metrics.RecordSearch(p.K, time.Since(start), st, err)
	db.logger.LogSearch(ctx, p.K, len(res), st, err)
	if err != nil {
		return nil, translateError(err)
	}
	return res, nil
}

// RangeSearch returns the admissible nodes found within p.Radius, best first.
func (db *DB) RangeSearch(ctx context.Context, query []float32, p RangeParams) ([]Result, error) {
	start := time.Now()
	res, err := db.ix.RangeSearch(ctx, query, p)
	db.metrics.RecordRangeSearch(len(res), time.Since(start), err)
	db.logger.LogRangeSearch(ctx, p.Radius, len(res), err)
	if err != nil {
		return nil, translateError(err)
	}
	return res, nil
}

// RangeSearchBatch runs RangeSearch for every query concurrently.
func (db *DB) RangeSearchBatch(ctx context.Context, queries [][]float32, p RangeParams) (*RangeResults, error) {
	start := time.Now()
	res, err := db.ix.RangeSearchBatch(ctx, queries, p)
	found := 0
	if res != nil {
		found = len(res.IDs)
	}
	db.metrics.RecordRangeSearch(found, time.Since(start), err)
	db.logger.LogRangeSearch(ctx, p.Radius, found, err)
	if err != nil {
		return nil, translateError(err)
	}
	return res, nil
}

// NewIterator prepares a streaming search. See Search for a range-over-func API.
func (db *DB) NewIterator(ctx context.Context, query []float32, p IteratorParams) (*Iterator, error) {
	it, err := db.ix.NewIterator(ctx, query, p)
	return it, translateError(err)
}

// GetVectors returns the stored vectors of ids in the query space.
func (db *DB) GetVectors(ctx context.Context, ids []uint32) ([][]float32, error) {
	v, err := db.ix.GetVectorByIDs(ctx, ids)
	return v, translateError(err)
}

// CacheBFS caches the n nodes closest to the entry points.
func (db *DB) CacheBFS(ctx context.Context, n int) error {
	start := time.Now()
	ids, err := db.ix.CacheBFSLevels(ctx, n)
	if err == nil {
		err = db.ix.LoadCacheList(ctx, ids)
	}
	db.recordCache(ctx, "bfs", time.Since(start), err)
	return translateError(err)
}

// LoadCacheList replaces the node cache with ids.
func (db *DB) LoadCacheList(ctx context.Context, ids []uint32) error {
	start := time.Now()
	err := db.ix.LoadCacheList(ctx, ids)
	db.recordCache(ctx, "list", time.Since(start), err)
	return translateError(err)
}

// GenerateCacheList starts a background cache build from sample queries and
// returns its task id. Concurrent searches keep using the old cache until
// the new one is swapped in.
func (db *DB) GenerateCacheList(ctx context.Context, samples [][]float32, p SampleCacheParams) (string, error) {
	id, err := db.ix.GenerateCacheListAsync(ctx, samples, p)
	return id, translateError(err)
}

// StopCacheTask asks a running cache build to stop.
func (db *DB) StopCacheTask() bool { return db.ix.StopCacheTask() }

// WaitCacheTask blocks until no cache build is running and returns its error.
func (db *DB) WaitCacheTask(ctx context.Context) error { return db.ix.WaitCacheTask(ctx) }

// CacheTaskState returns the status of the cache build.
func (db *DB) CacheTaskState() TaskState { return db.ix.CacheTaskState() }

// HotNodes returns the n most visited nodes. It requires WithVisitTracking.
func (db *DB) HotNodes(n int) []uint32 { return db.ix.HotNodes(n) }

// Close stops background work and releases the index.
func (db *DB) Close() error {
	err := db.ix.Close()
	if db.blockCache != nil {
		err = errors.Join(err, db.blockCache.Close())
	}
	return err
}

func (db *DB) onCacheTask(id string, nodes int, elapsed time.Duration, err error) {
	db.metrics.RecordCacheBuild(nodes, elapsed, err)
	l := &Logger{Logger: db.logger.With("task", id)}
	l.LogCacheBuild(context.Background(), "samples", nodes, elapsed, err)
}

func (db *DB) recordCache(ctx context.Context, source string, elapsed time.Duration, err error) {
	nodes := db.ix.CachedNodes()
	db.metrics.RecordCacheBuild(nodes, elapsed, err)
	db.logger.LogCacheBuild(ctx, source, nodes, elapsed, err)
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) { return diskann.ParseCompression(s) }

// ReadCacheList loads a cache-list artifact written by WriteCacheList.
func ReadCacheList(ctx context.Context, store blobstore.Store, name string) ([]uint32, error) {
	return diskann.ReadCacheList(ctx, store, name)
}

// WriteCacheList stores ids as a cache-list artifact.
func WriteCacheList(ctx context.Context, store blobstore.Store, name string, ids []uint32, c Compression) error {
	return diskann.WriteCacheList(ctx, store, name, ids, c)
}

func mergeStats(dst, src *QueryStats) {
	dst.Elapsed += src.Elapsed
	dst.IOTime += src.IOTime
	dst.NumIOs += src.NumIOs
	dst.ReadBytes += src.ReadBytes
	dst.CacheHits += src.CacheHits
	dst.NumHops += src.NumHops
	dst.NumCmps += src.NumCmps
	dst.NumPQ += src.NumPQ
	dst.BruteForce = dst.BruteForce || src.BruteForce
}
