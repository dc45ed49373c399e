// Package prometheus exports pqflash operation metrics to Prometheus.
package prometheus

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/pqflash"
)

var _ pqflash.MetricsCollector = (*Collector)(nil)

// Collector implements pqflash.MetricsCollector with Prometheus metrics.
type Collector struct {
	gatherer prom.Gatherer

	opLatency   *prom.HistogramVec
	ios         prom.Histogram
	readBytes   prom.Counter
	cacheHits   prom.Counter
	bruteForce  prom.Counter
	rangeHits   prom.Counter
	cacheBuilds *prom.CounterVec
	cachedNodes prom.Gauge
}

// Option configures NewCollector.
type Option func(*options)

type options struct {
	namespace  string
	registerer prom.Registerer
	gatherer   prom.Gatherer
	buckets    []float64
}

// WithNamespace prefixes every metric name. Defaults to "pqflash".
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithRegistry registers the metrics with r instead of the default registry.
func WithRegistry(r *prom.Registry) Option {
	return func(o *options) {
		o.registerer = r
		o.gatherer = r
	}
}

// WithLatencyBuckets sets the latency histogram buckets in seconds.
func WithLatencyBuckets(b []float64) Option {
	return func(o *options) { o.buckets = b }
}

// NewCollector creates and registers the metrics.
func NewCollector(optFns ...Option) (*Collector, error) {
	o := options{
		namespace:  "pqflash",
		registerer: prom.DefaultRegisterer,
		gatherer:   prom.DefaultGatherer,
		buckets:    prom.ExponentialBuckets(0.0001, 2, 16),
	}
	for _, fn := range optFns {
		fn(&o)
	}

	c := &Collector{
		gatherer: o.gatherer,
		opLatency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: o.namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of index operations",
			Buckets:   o.buckets,
		}, []string{"op", "status"}),
		ios: prom.NewHistogram(prom.HistogramOpts{
			Namespace: o.namespace,
			Name:      "search_sector_reads",
			Help:      "Sector reads per k-NN search",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}),
		readBytes: prom.NewCounter(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "read_bytes_total",
			Help:      "Bytes read from the disk index by searches",
		}),
		cacheHits: prom.NewCounter(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "node_cache_hits_total",
			Help:      "Expanded nodes served from the node cache",
		}),
		bruteForce: prom.NewCounter(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "brute_force_fallbacks_total",
			Help:      "Filtered searches completed by brute force",
		}),
		rangeHits: prom.NewCounter(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "range_results_total",
			Help:      "Results returned by range searches",
		}),
		cacheBuilds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "cache_builds_total",
			Help:      "Node cache replacements",
		}, []string{"status"}),
		cachedNodes: prom.NewGauge(prom.GaugeOpts{
			Namespace: o.namespace,
			Name:      "cached_nodes",
			Help:      "Nodes held by the node cache",
		}),
	}

	for _, m := range []prom.Collector{
		c.opLatency, c.ios, c.readBytes, c.cacheHits, c.bruteForce,
		c.rangeHits, c.cacheBuilds, c.cachedNodes,
	} {
		if err := o.registerer.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordSearch implements pqflash.MetricsCollector.
func (c *Collector) RecordSearch(_ int, d time.Duration, st pqflash.QueryStats, err error) {
	c.opLatency.WithLabelValues("search", status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	c.ios.Observe(float64(st.NumIOs))
	c.readBytes.Add(float64(st.ReadBytes))
	c.cacheHits.Add(float64(st.CacheHits))
	if st.BruteForce {
		c.bruteForce.Inc()
	}
}

// RecordRangeSearch implements pqflash.MetricsCollector.
func (c *Collector) RecordRangeSearch(results int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("range_search", status(err)).Observe(d.Seconds())
	if err == nil {
		c.rangeHits.Add(float64(results))
	}
}

// RecordCacheBuild implements pqflash.MetricsCollector.
func (c *Collector) RecordCacheBuild(nodes int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("cache_build", status(err)).Observe(d.Seconds())
	c.cacheBuilds.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.cachedNodes.Set(float64(nodes))
	}
}

// Handler serves the registry the collector was registered with.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
