package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/pqflash/metrics/prometheus"
)

// metricsServer serves the Prometheus metrics of one command run.
type metricsServer struct {
	collector *prometheus.Collector
	srv       *http.Server
	ln        net.Listener
	done      chan error
}

// startMetrics registers a collector on a fresh registry and serves it on
// addr under /metrics.
func startMetrics(addr string) (*metricsServer, error) {
	c, err := prometheus.NewCollector(prometheus.WithRegistry(prom.NewRegistry()))
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	m := &metricsServer{
		collector: c,
		srv:       &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:        ln,
		done:      make(chan error, 1),
	}
	go func() { m.done <- m.srv.Serve(ln) }()
	return m, nil
}

// URL returns the address of the metrics endpoint.
func (m *metricsServer) URL() string { return "http://" + m.ln.Addr().String() + "/metrics" }

// Close shuts the server down.
func (m *metricsServer) Close(ctx context.Context) error {
	err := m.srv.Shutdown(ctx)
	if serr := <-m.done; !errors.Is(serr, http.ErrServerClosed) {
		err = errors.Join(err, serr)
	}
	return err
}
