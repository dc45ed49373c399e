package pqflash

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}
	assert.Zero(t, m.GetStats().SearchAvgNanos)

	m.RecordSearch(10, 2*time.Millisecond, QueryStats{NumIOs: 4, ReadBytes: 16384, CacheHits: 2}, nil)
	m.RecordSearch(10, 4*time.Millisecond, QueryStats{NumIOs: 2, BruteForce: true}, nil)
	m.RecordSearch(10, 0, QueryStats{NumIOs: 100}, errors.New("read failed"))
	m.RecordRangeSearch(7, time.Millisecond, nil)
	m.RecordRangeSearch(0, time.Millisecond, errors.New("cancelled"))
	m.RecordCacheBuild(128, time.Second, nil)
	m.RecordCacheBuild(0, time.Second, errors.New("stopped"))

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
	assert.Equal(t, int64(2*time.Millisecond), stats.SearchAvgNanos)
	assert.Equal(t, int64(6), stats.SearchIOs)
	assert.Equal(t, int64(16384), stats.SearchReadBytes)
	assert.Equal(t, int64(2), stats.SearchCacheHits)
	assert.Equal(t, int64(1), stats.BruteForceCount)
	assert.Equal(t, int64(2), stats.RangeCount)
	assert.Equal(t, int64(1), stats.RangeErrors)
	assert.Equal(t, int64(7), stats.RangeResults)
	assert.Equal(t, int64(2), stats.CacheBuildCount)
	assert.Equal(t, int64(1), stats.CacheBuildErrors)
	assert.Equal(t, int64(128), stats.CachedNodes)
}

func TestNoopMetricsCollector(t *testing.T) {
	var m MetricsCollector = NoopMetricsCollector{}
	m.RecordSearch(1, time.Second, QueryStats{}, nil)
	m.RecordRangeSearch(1, time.Second, nil)
	m.RecordCacheBuild(1, time.Second, nil)
}
