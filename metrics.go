package pqflash

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
// The metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordSearch is called after each k-NN search. stats holds the
	// counters of the query, which may be partial when err is set.
	RecordSearch(k int, duration time.Duration, stats QueryStats, err error)

	// RecordRangeSearch is called after each range search.
	RecordRangeSearch(results int, duration time.Duration, err error)

	// RecordCacheBuild is called after the node cache is replaced or a
	// replacement fails.
	RecordCacheBuild(nodes int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(int, time.Duration, QueryStats, error) {}
func (NoopMetricsCollector) RecordRangeSearch(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordCacheBuild(int, time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	SearchIOs        atomic.Int64
	SearchReadBytes  atomic.Int64
	SearchCacheHits  atomic.Int64
	BruteForceCount  atomic.Int64
	RangeCount       atomic.Int64
	RangeErrors      atomic.Int64
	RangeResults     atomic.Int64
	CacheBuildCount  atomic.Int64
	CacheBuildErrors atomic.Int64
	CachedNodes      atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, stats QueryStats, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
		return
	}
	b.SearchIOs.Add(int64(stats.NumIOs))
	b.SearchReadBytes.Add(stats.ReadBytes)
	b.SearchCacheHits.Add(int64(stats.CacheHits))
	if stats.BruteForce {
		b.BruteForceCount.Add(1)
	}
}

// RecordRangeSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRangeSearch(results int, duration time.Duration, err error) {
	b.RangeCount.Add(1)
	if err != nil {
		b.RangeErrors.Add(1)
		return
	}
	b.RangeResults.Add(int64(results))
}

// RecordCacheBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheBuild(nodes int, duration time.Duration, err error) {
	b.CacheBuildCount.Add(1)
	if err != nil {
		b.CacheBuildErrors.Add(1)
		return
	}
	b.CachedNodes.Store(int64(nodes))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SearchCount:      b.SearchCount.Load(),
		SearchErrors:     b.SearchErrors.Load(),
		SearchAvgNanos:   b.getAvgSearchNanos(),
		SearchIOs:        b.SearchIOs.Load(),
		SearchReadBytes:  b.SearchReadBytes.Load(),
		SearchCacheHits:  b.SearchCacheHits.Load(),
		BruteForceCount:  b.BruteForceCount.Load(),
		RangeCount:       b.RangeCount.Load(),
		RangeErrors:      b.RangeErrors.Load(),
		RangeResults:     b.RangeResults.Load(),
		CacheBuildCount:  b.CacheBuildCount.Load(),
		CacheBuildErrors: b.CacheBuildErrors.Load(),
		CachedNodes:      b.CachedNodes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount      int64
	SearchErrors     int64
	SearchAvgNanos   int64
	SearchIOs        int64
	SearchReadBytes  int64
	SearchCacheHits  int64
	BruteForceCount  int64
	RangeCount       int64
	RangeErrors      int64
	RangeResults     int64
	CacheBuildCount  int64
	CacheBuildErrors int64
	CachedNodes      int64
}
