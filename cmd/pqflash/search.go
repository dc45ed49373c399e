package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pqflash"
)

type searchFlags struct {
	queries  string
	k        int
	lsearch  int
	beam     int
	reorder  bool
	ioLimit  int
	radius   float32
	parallel int
	quiet    bool
	metrics  string
	linger   time.Duration
}

func newSearchCmd(a *app) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the queries of a .bin file against an index",
		Long: `Run every row of a .bin query file against the index and print the
results and the mean query statistics.

Examples:
  pqflash search --index sift --queries queries.bin -k 10 -L 100
  pqflash search --index sift --queries queries.bin --radius 0.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, a, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.queries, "queries", "q", "", "query .bin file")
	fl.IntVarP(&f.k, "k", "k", 10, "results per query")
	fl.IntVarP(&f.lsearch, "lsearch", "L", 0, "search-list width (default max(k, 100))")
	fl.IntVarP(&f.beam, "beam", "W", 0, "sector reads per step (default 4)")
	fl.BoolVar(&f.reorder, "reorder", false, "re-rank with full-precision reorder data")
	fl.IntVar(&f.ioLimit, "io-limit", 0, "maximum sector reads per query")
	fl.Float32Var(&f.radius, "radius", 0, "run range searches with this radius instead of k-NN")
	fl.IntVarP(&f.parallel, "parallel", "p", runtime.GOMAXPROCS(0), "concurrent queries")
	fl.BoolVar(&f.quiet, "quiet", false, "print only the summary")
	fl.StringVar(&f.metrics, "metrics-addr", "", "serve Prometheus metrics on this address while searching")
	fl.DurationVar(&f.linger, "metrics-linger", 0, "keep serving metrics this long after the last query")
	_ = cmd.MarkFlagRequired("queries")
	return cmd
}

func runSearch(cmd *cobra.Command, a *app, f *searchFlags) error {
	ctx := cmd.Context()
	queries, err := readQueries(f.queries)
	if err != nil {
		return err
	}
	var extra []pqflash.Option
	if f.metrics != "" {
		m, err := startMetrics(f.metrics)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() {
			if f.linger > 0 {
				select {
				case <-time.After(f.linger):
				case <-ctx.Done():
				}
			}
			_ = m.Close(context.WithoutCancel(ctx))
		}()
		fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on %s\n", m.URL())
		extra = append(extra, pqflash.WithMetricsCollector(m.collector))
	}

	db, _, err := openIndex(ctx, a.cfg, extra...)
	if err != nil {
		return err
	}
	defer db.Close()

	results := make([][]pqflash.Result, len(queries))
	stats := make([]pqflash.QueryStats, len(queries))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.parallel, 1))
	for i, q := range queries {
		g.Go(func() error {
			var err error
			if f.radius > 0 {
				results[i], err = db.RangeSearch(gctx, q, pqflash.RangeParams{
					Radius:    f.radius,
					BeamWidth: f.beam,
					Stats:     &stats[i],
				})
			} else {
				results[i], err = db.KNNSearch(gctx, q, pqflash.SearchParams{
					K:              f.k,
					LSearch:        f.lsearch,
					BeamWidth:      f.beam,
					UseReorderData: f.reorder,
					IOLimit:        f.ioLimit,
					Stats:          &stats[i],
				})
			}
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	if !f.quiet {
		for i, res := range results {
			fmt.Fprintf(out, "query %d:", i)
			for _, r := range res {
				fmt.Fprintf(out, " %d:%g", r.ID, r.Distance)
			}
			fmt.Fprintln(out)
		}
	}
	printSummary(cmd, len(queries), elapsed, stats)
	return nil
}

func printSummary(cmd *cobra.Command, n int, elapsed time.Duration, stats []pqflash.QueryStats) {
	if n == 0 {
		return
	}
	var ios, hits, hops, cmps int
	var latency time.Duration
	for _, st := range stats {
		ios += st.NumIOs
		hits += st.CacheHits
		hops += st.NumHops
		cmps += st.NumCmps
		latency += st.Elapsed
	}
	d := float64(n)
	fmt.Fprintf(cmd.OutOrStdout(),
		"queries=%d qps=%.1f mean_latency=%s mean_ios=%.2f mean_cache_hits=%.2f mean_hops=%.2f mean_cmps=%.2f\n",
		n, d/elapsed.Seconds(), latency/time.Duration(n), float64(ios)/d, float64(hits)/d, float64(hops)/d, float64(cmps)/d)
}
