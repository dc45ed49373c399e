package diskann

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/pqflash/blobstore"
	"github.com/hupe1980/pqflash/internal/cache"
	"github.com/hupe1980/pqflash/internal/cachelist"
	"github.com/hupe1980/pqflash/internal/taskstate"
)

// cacheBatch is the number of nodes read per cache-building step.
const cacheBatch = 64

// TaskState is the status of the background cache task.
type TaskState = taskstate.State

const (
	TaskIdle          = taskstate.Idle
	TaskRunning       = taskstate.Running
	TaskStopRequested = taskstate.StopRequested
	TaskCompleted     = taskstate.Completed
	TaskKilled        = taskstate.Killed
)

// Compression selects the codec of a cache-list artifact.
type Compression = cachelist.Compression

const (
	CompressionNone = cachelist.CompressionNone
	CompressionLZ4  = cachelist.CompressionLZ4
	CompressionZSTD = cachelist.CompressionZSTD
)

// CacheBFSLevels returns up to n node ids in breadth-first order from the
// medoids. Each level is sorted by id.
func (ix *Index) CacheBFSLevels(ctx context.Context, n int) ([]uint32, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}
	n = min(n, int(ix.hdr.NumPoints))
	if n <= 0 {
		return nil, nil
	}

	s := ix.newScratch()
	var st QueryStats
	seen := make(map[uint32]struct{}, n)
	level := slices.Clone(ix.hdr.Medoids)
	slices.Sort(level)
	level = slices.Compact(level)
	for _, id := range level {
		seen[id] = struct{}{}
	}

	out := make([]uint32, 0, n)
	for len(level) > 0 && len(out) < n {
		take := min(len(level), n-len(out))
		level = level[:take]
		out = append(out, level...)
		if len(out) == n {
			break
		}

		var next []uint32
		collect := func(_ uint32, _ []byte, nbrs []uint32) error {
			for _, nb := range nbrs {
				if uint64(nb) >= ix.hdr.NumPoints {
					return fmt.Errorf("%w: neighbor %d out of range", ErrInvalidFormat, nb)
				}
				if _, ok := seen[nb]; !ok {
					seen[nb] = struct{}{}
					next = append(next, nb)
				}
			}
			return nil
		}
		for i := 0; i < len(level); i += cacheBatch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			batch := level[i:min(i+cacheBatch, len(level))]
			if err := ix.readNodes(ctx, batch, nil, &s, &st, collect); err != nil {
				return nil, err
			}
		}
		slices.Sort(next)
		level = next
	}

	ix.logger.Info("bfs cache list", "nodes", len(out), "ios", st.NumIOs)
	return out, nil
}

// LoadCacheList reads the nodes in ids and publishes them as the node cache,
// replacing the current one.
func (ix *Index) LoadCacheList(ctx context.Context, ids []uint32) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}
	for _, id := range ids {
		if uint64(id) >= ix.hdr.NumPoints {
			return &ErrIDOutOfRange{ID: id, NumPoints: ix.hdr.NumPoints}
		}
	}
	start := time.Now()
	snap, err := ix.buildSnapshot(ctx, ids, nil)
	if err != nil {
		return err
	}
	if err := ix.nodeCache.Swap(snap); err != nil {
		return err
	}
	ix.logger.Info("node cache loaded", "nodes", snap.Len(), "bytes", snap.Bytes(), "elapsed", time.Since(start))
	return nil
}

// buildSnapshot reads ids aside into a new snapshot. stop, when set, is
// polled between batches.
func (ix *Index) buildSnapshot(ctx context.Context, ids []uint32, stop func() bool) (*cache.Snapshot, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	s := ix.newScratch()
	var st QueryStats
	snap := cache.NewSnapshot(len(ids))
	put := func(id uint32, coords []byte, nbrs []uint32) error {
		snap.Put(id, cache.Node{
			Neighbors: slices.Clone(nbrs),
			Coords:    slices.Clone(coords),
		})
		return nil
	}
	for i := 0; i < len(ids); i += cacheBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stop != nil && stop() {
			return nil, ErrTaskStopped
		}
		if err := ix.readNodes(ctx, ids[i:min(i+cacheBatch, len(ids))], nil, &s, &st, put); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// GenerateCacheListAsync starts a background task that runs samples through
// the search with the node cache bypassed, then caches the NumNodes most
// visited nodes. It returns the task id for log correlation.
func (ix *Index) GenerateCacheListAsync(ctx context.Context, samples [][]float32, p SampleCacheParams) (string, error) {
	if err := ix.checkOpen(); err != nil {
		return "", err
	}
	if p.LSearch == 0 {
		p.LSearch = DefaultLSearch
	}
	if p.LSearch < 0 || p.NumNodes <= 0 {
		return "", invalidParams("l_search %d, num_nodes %d", p.LSearch, p.NumNodes)
	}
	if err := normalizeBeam(&p.BeamWidth); err != nil {
		return "", err
	}
	for _, q := range samples {
		if len(q) != ix.queryDim {
			return "", &ErrDimensionMismatch{Expected: ix.queryDim, Actual: len(q)}
		}
	}
	ix.taskMu.Lock()
	if ix.closed.Load() {
		ix.taskMu.Unlock()
		return "", ErrClosed
	}
	if err := ix.task.Start(); err != nil {
		ix.taskMu.Unlock()
		return "", ErrTaskBusy
	}
	ix.taskWG.Add(1)
	ix.taskMu.Unlock()

	id := uuid.NewString()
	logger := ix.logger.With("task", id)
	logger.Info("cache task started", "samples", len(samples), "nodes", p.NumNodes)

	go func() {
		defer ix.taskWG.Done()
		start := time.Now()
		err := ix.runCacheTask(ctx, samples, p)
		elapsed := time.Since(start)
		if hook := ix.opts.taskHook; hook != nil {
			hook(id, ix.CachedNodes(), elapsed, err)
		}
		ix.task.Finish(err)
		if err != nil {
			logger.Warn("cache task killed", "error", err, "elapsed", elapsed)
			return
		}
		logger.Info("cache task completed", "nodes", ix.CachedNodes(), "elapsed", elapsed)
	}()
	return id, nil
}

func (ix *Index) runCacheTask(ctx context.Context, samples [][]float32, p SampleCacheParams) error {
	rc := ix.opts.rc
	if err := rc.AcquireBackground(ctx); err != nil {
		return err
	}
	defer rc.ReleaseBackground()

	tracker := cache.NewVisitTracker(int(ix.hdr.NumPoints), max(p.NumNodes, 1024))
	s := ix.newScratch()
	var st QueryStats
	for _, q := range samples {
		if ix.task.StopRequested() {
			return ErrTaskStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ix.prepare(q, &s.q); err != nil {
			return err
		}
		err := ix.beamSearch(ctx, &s, &st, beamParams{
			lsearch:   p.LSearch,
			beamWidth: p.BeamWidth,
			exactCap:  1,
			tracker:   tracker,
		})
		if err != nil {
			return err
		}
	}

	snap, err := ix.buildSnapshot(ctx, tracker.TopN(p.NumNodes), ix.task.StopRequested)
	if err != nil {
		return err
	}
	if ix.task.StopRequested() {
		return ErrTaskStopped
	}
	return ix.nodeCache.Swap(snap)
}

// StopCacheTask asks a running cache task to stop. It reports whether a
// task was running.
func (ix *Index) StopCacheTask() bool {
	if !ix.task.RequestStop() {
		return false
	}
	ix.logger.Info("cache task stop requested")
	return true
}

// WaitCacheTask blocks until the cache task is not running and returns its
// error, or ctx.Err().
func (ix *Index) WaitCacheTask(ctx context.Context) error {
	return ix.task.WaitUntilTerminal(ctx)
}

// CacheTaskState returns the status of the cache task.
func (ix *Index) CacheTaskState() TaskState { return ix.task.State() }

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) { return cachelist.ParseCompression(s) }

// WriteCacheList stores ids as a cache-list artifact.
func WriteCacheList(ctx context.Context, store blobstore.Store, name string, ids []uint32, c Compression) error {
	buf, err := cachelist.Encode(ids, c)
	if err != nil {
		return err
	}
	return store.Put(ctx, name, buf)
}

// ReadCacheList loads a cache-list artifact.
func ReadCacheList(ctx context.Context, store blobstore.Store, name string) ([]uint32, error) {
	buf, err := blobstore.ReadFile(ctx, store, name)
	if err != nil {
		return nil, err
	}
	return cachelist.Decode(buf)
}
