package prometheus

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pqflash"
)

func newTestCollector(t *testing.T) (*Collector, *prom.Registry) {
	t.Helper()
	reg := prom.NewRegistry()
	c, err := NewCollector(WithRegistry(reg), WithNamespace("test"))
	require.NoError(t, err)
	return c, reg
}

func TestCollector_RecordSearch(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordSearch(10, time.Millisecond, pqflash.QueryStats{NumIOs: 12, ReadBytes: 4096 * 12, CacheHits: 3}, nil)
	c.RecordSearch(10, time.Millisecond, pqflash.QueryStats{NumIOs: 4, BruteForce: true}, nil)
	c.RecordSearch(10, time.Millisecond, pqflash.QueryStats{NumIOs: 99}, errors.New("read failed"))

	assert.Equal(t, float64(4096*12), testutil.ToFloat64(c.readBytes))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.bruteForce))
	assert.Equal(t, 2, testutil.CollectAndCount(c.opLatency))
}

func TestCollector_RangeAndCache(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRangeSearch(5, time.Millisecond, nil)
	c.RecordRangeSearch(9, time.Millisecond, errors.New("cancelled"))
	assert.Equal(t, float64(5), testutil.ToFloat64(c.rangeHits))

	c.RecordCacheBuild(64, time.Second, nil)
	c.RecordCacheBuild(0, time.Second, pqflash.ErrTaskStopped)
	assert.Equal(t, float64(64), testutil.ToFloat64(c.cachedNodes))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheBuilds.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheBuilds.WithLabelValues("error")))
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prom.NewRegistry()
	_, err := NewCollector(WithRegistry(reg))
	require.NoError(t, err)
	_, err = NewCollector(WithRegistry(reg))
	assert.Error(t, err)
}

func TestCollector_Handler(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordCacheBuild(7, time.Second, nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_cached_nodes 7")
}
