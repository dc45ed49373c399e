package main

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pqflash"
	"github.com/hupe1980/pqflash/internal/testutil"
)

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsServer(t *testing.T) {
	setupIndex(t)
	cfg, err := loadConfig("", "")
	require.NoError(t, err)
	cfg.Index.Name = "demo"

	m, err := startMetrics("127.0.0.1:0")
	require.NoError(t, err)

	db, _, err := openIndex(t.Context(), cfg, pqflash.WithMetricsCollector(m.collector))
	require.NoError(t, err)
	defer db.Close()

	for _, q := range testutil.NewRNG(3).GaussianVectors(2, 16) {
		_, err := db.KNNSearch(t.Context(), q, pqflash.SearchParams{K: 5})
		require.NoError(t, err)
	}

	body := scrape(t, m.URL())
	assert.Contains(t, body, `pqflash_operation_latency_seconds_count{op="search",status="success"} 2`)
	assert.Contains(t, body, "pqflash_search_sector_reads_count 2")

	require.NoError(t, m.Close(t.Context()))
	_, err = http.Get(m.URL()) //nolint:noctx // test helper
	assert.Error(t, err)
}

func TestMetricsServer_BadAddr(t *testing.T) {
	_, err := startMetrics("not-an-address")
	assert.Error(t, err)
}

func TestCLI_SearchServesMetrics(t *testing.T) {
	_, queries := setupIndex(t)

	out, err := run(t, "--index", "demo", "search", "-q", queries, "-k", "5", "--metrics-addr", "127.0.0.1:0", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "queries=3")

	_, err = run(t, "--index", "demo", "search", "-q", queries, "--metrics-addr", "not-an-address")
	assert.ErrorContains(t, err, "metrics")
}
