package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pqflash"
	"github.com/hupe1980/pqflash/blobstore"
)

type cacheFlags struct {
	nodes       int
	out         string
	compression string
	queries     string
	lsearch     int
	beam        int
}

func newCacheCmd(a *app) *cobra.Command {
	f := &cacheFlags{}
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Build node cache lists",
		Long: `Build a cache-list artifact next to the index. Load it at open with
index.cache_list (or PQFLASH_INDEX_CACHE_LIST).`,
	}
	pf := cmd.PersistentFlags()
	pf.IntVarP(&f.nodes, "nodes", "n", 10000, "number of nodes to cache")
	pf.StringVarP(&f.out, "out", "o", "", "artifact name in the store (default <index>_cache.bin)")
	pf.StringVar(&f.compression, "compression", "zstd", "artifact compression: none, lz4 or zstd")

	bfs := &cobra.Command{
		Use:   "bfs",
		Short: "Cache the nodes closest to the entry points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCache(cmd, a, f, func(ctx context.Context, db *pqflash.DB) ([]uint32, error) {
				return db.Index().CacheBFSLevels(ctx, f.nodes)
			})
		},
	}

	sample := &cobra.Command{
		Use:   "sample",
		Short: "Cache the nodes most visited by sample queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			samples, err := readQueries(f.queries)
			if err != nil {
				return err
			}
			return runCache(cmd, a, f, func(ctx context.Context, db *pqflash.DB) ([]uint32, error) {
				return sampleCache(ctx, cmd, db, samples, pqflash.SampleCacheParams{
					LSearch:   f.lsearch,
					BeamWidth: f.beam,
					NumNodes:  f.nodes,
				})
			})
		},
	}
	sample.Flags().StringVarP(&f.queries, "queries", "q", "", "sample query .bin file")
	sample.Flags().IntVarP(&f.lsearch, "lsearch", "L", 0, "search-list width (default 100)")
	sample.Flags().IntVarP(&f.beam, "beam", "W", 0, "sector reads per step (default 4)")
	_ = sample.MarkFlagRequired("queries")

	cmd.AddCommand(bfs, sample)
	return cmd
}

func runCache(cmd *cobra.Command, a *app, f *cacheFlags, build func(context.Context, *pqflash.DB) ([]uint32, error)) error {
	ctx := cmd.Context()
	comp, err := pqflash.ParseCompression(f.compression)
	if err != nil {
		return err
	}
	// The artifact is built from the index alone.
	cfg := a.cfg
	cfg.Index.CacheList = ""
	cfg.Index.BFSCache = 0
	db, store, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := build(ctx, db)
	if err != nil {
		return err
	}
	return writeList(cmd, store, f.out, cfg.Index.Name, ids, comp)
}

// sampleCache runs the background cache build and waits for it. An
// interrupt stops the build.
func sampleCache(ctx context.Context, cmd *cobra.Command, db *pqflash.DB, samples [][]float32, p pqflash.SampleCacheParams) ([]uint32, error) {
	id, err := db.GenerateCacheList(context.WithoutCancel(ctx), samples, p)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "cache task %s started with %d samples\n", id, len(samples))

	err = db.WaitCacheTask(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		db.StopCacheTask()
		return nil, errors.Join(err, db.WaitCacheTask(context.Background()))
	}
	if err != nil {
		return nil, err
	}
	return db.CachedIDs(), nil
}

func writeList(cmd *cobra.Command, store blobstore.Store, out, index string, ids []uint32, comp pqflash.Compression) error {
	if out == "" {
		out = index + "_cache.bin"
	}
	if err := pqflash.WriteCacheList(cmd.Context(), store, out, ids, comp); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d ids to %s (%s)\n", len(ids), out, comp)
	return nil
}
