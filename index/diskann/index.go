package diskann

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/pqflash/blobstore"
	"github.com/hupe1980/pqflash/distance"
	"github.com/hupe1980/pqflash/internal/aio"
	"github.com/hupe1980/pqflash/internal/cache"
	"github.com/hupe1980/pqflash/internal/layout"
	"github.com/hupe1980/pqflash/internal/pq"
	"github.com/hupe1980/pqflash/internal/scratch"
	"github.com/hupe1980/pqflash/internal/taskstate"
)

// DiskSuffix and ResidentSuffix name the blobs of an index prefix.
const (
	DiskSuffix     = "_disk.index"
	ResidentSuffix = "_pq.bin"
)

// Index is a loaded disk index. It is safe for concurrent use.
type Index struct {
	hdr      *layout.Header
	res      *layout.Resident
	queryDim int

	blob   blobstore.Blob
	reader *aio.BlobReader
	pool   *scratch.Pool[queryScratch]

	nodeCache *cache.NodeCache
	tracker   *cache.VisitTracker
	task      *taskstate.Controller
	taskWG    sync.WaitGroup
	// taskMu orders task starts against Close.
	taskMu sync.Mutex

	opts   options
	logger *slog.Logger
	closed atomic.Bool
}

// Open loads the index stored under prefix: prefix_disk.index and prefix_pq.bin.
func Open(ctx context.Context, store blobstore.Store, prefix string, optFns ...Option) (*Index, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	blob, err := store.Open(ctx, prefix+DiskSuffix)
	if err != nil {
		return nil, fmt.Errorf("open disk index: %w", err)
	}

	ix := &Index{
		blob:      blob,
		opts:      opts,
		logger:    opts.logger,
		nodeCache: cache.NewNodeCache(opts.rc),
		task:      taskstate.New(),
	}
	if err := ix.load(ctx, store, prefix); err != nil {
		_ = blob.Close()
		return nil, err
	}

	ids := opts.cacheList
	if ids == nil && opts.bfsCacheNodes > 0 {
		if ids, err = ix.CacheBFSLevels(ctx, opts.bfsCacheNodes); err != nil {
			_ = ix.Close()
			return nil, err
		}
	}
	if len(ids) > 0 {
		if err := ix.LoadCacheList(ctx, ids); err != nil {
			_ = ix.Close()
			return nil, err
		}
	}
	return ix, nil
}

func (ix *Index) load(ctx context.Context, store blobstore.Store, prefix string) error {
	size := ix.blob.Size()
	if size < layout.SectorLen {
		return fmt.Errorf("%w: disk index of %d bytes", layout.ErrInvalidFormat, size)
	}
	sector0 := make([]byte, layout.SectorLen)
	if _, err := ix.blob.ReadAt(ctx, sector0, 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	metaSectors, err := layout.PeekMetadataSectors(sector0)
	if err != nil {
		return err
	}
	meta := sector0
	if metaSectors > 1 {
		metaLen := int64(metaSectors) * layout.SectorLen
		if metaLen > size {
			return fmt.Errorf("%w: %d metadata sectors exceed blob", layout.ErrInvalidFormat, metaSectors)
		}
		meta = make([]byte, metaLen)
		if _, err := ix.blob.ReadAt(ctx, meta, 0); err != nil {
			return fmt.Errorf("read metadata: %w", err)
		}
	}
	h, err := layout.DecodeHeader(meta)
	if err != nil {
		return err
	}
	if err := h.Validate(size); err != nil {
		return err
	}

	buf, err := blobstore.ReadFile(ctx, store, prefix+ResidentSuffix)
	if err != nil {
		return fmt.Errorf("read resident data: %w", err)
	}
	res, err := layout.DecodeResident(buf)
	if err != nil {
		return err
	}
	if err := checkResident(h, res); err != nil {
		return err
	}

	ix.hdr = h
	ix.res = res
	ix.queryDim = h.QueryDim()
	ix.reader = aio.NewBlobReader(ix.blob,
		aio.WithMaxInFlight(ix.opts.maxInFlight),
		aio.WithResourceController(ix.opts.rc),
	)
	ix.pool = scratch.New(ix.opts.numThreads, func(int) queryScratch { return ix.newScratch() })
	if ix.opts.visitRecency > 0 {
		ix.tracker = cache.NewVisitTracker(int(h.NumPoints), ix.opts.visitRecency)
	}

	ix.logger.Info("disk index loaded",
		"prefix", prefix,
		"points", h.NumPoints,
		"dim", ix.queryDim,
		"metric", h.Metric.String(),
		"dataType", h.DataType.String(),
		"maxDegree", h.MaxDegree,
		"nodesPerSector", h.NodesPerSector,
		"sectorsPerNode", h.SectorsPerNode(),
		"pqChunks", res.Table.NumChunks(),
		"diskPQChunks", h.DiskPQChunks,
		"medoids", len(h.Medoids),
		"frozen", h.NumFrozen,
		"reorder", h.HasReorderData(),
	)
	return nil
}

func checkResident(h *layout.Header, r *layout.Resident) error {
	if r.NumPoints != h.NumPoints {
		return fmt.Errorf("%w: resident data has %d points, disk index %d", layout.ErrInvalidFormat, r.NumPoints, h.NumPoints)
	}
	if r.Table.Dim() != int(h.Dim) {
		return fmt.Errorf("%w: PQ table dim %d, disk index %d", layout.ErrInvalidFormat, r.Table.Dim(), h.Dim)
	}
	if r.BaseNorms != nil && uint64(len(r.BaseNorms)) != h.NumPoints {
		return fmt.Errorf("%w: %d base norms for %d points", layout.ErrInvalidFormat, len(r.BaseNorms), h.NumPoints)
	}
	if h.DiskPQChunks > 0 {
		if r.DiskTable == nil {
			return fmt.Errorf("%w: disk-PQ index without disk-PQ table", layout.ErrInvalidFormat)
		}
		if r.DiskTable.NumChunks() != int(h.DiskPQChunks) || r.DiskTable.Dim() != int(h.Dim) {
			return fmt.Errorf("%w: disk-PQ table geometry mismatch", layout.ErrInvalidFormat)
		}
	} else if r.DiskTable != nil {
		return fmt.Errorf("%w: unexpected disk-PQ table", layout.ErrInvalidFormat)
	}
	return nil
}

// NumPoints returns the number of stored nodes, including a frozen point.
func (ix *Index) NumPoints() uint64 { return ix.hdr.NumPoints }

// Dim returns the query dimensionality.
func (ix *Index) Dim() int { return ix.queryDim }

// MaxDegree returns the maximum graph degree.
func (ix *Index) MaxDegree() int { return int(ix.hdr.MaxDegree) }

// Metric returns the distance metric.
func (ix *Index) Metric() distance.Metric { return ix.hdr.Metric }

// Medoids returns the entry point ids.
func (ix *Index) Medoids() []uint32 { return append([]uint32(nil), ix.hdr.Medoids...) }

// HasReorderData reports whether full-precision reorder vectors are stored.
func (ix *Index) HasReorderData() bool { return ix.hdr.HasReorderData() }

// CachedNodes returns the number of nodes in the node cache.
func (ix *Index) CachedNodes() int { return ix.nodeCache.Load().Len() }

// CachedIDs returns the ids in the node cache in ascending order.
func (ix *Index) CachedIDs() []uint32 {
	ids := ix.nodeCache.Load().IDs()
	slices.Sort(ids)
	return ids
}

// CalSize estimates the resident memory of the index in bytes: PQ data,
// norms, node cache and scratch.
func (ix *Index) CalSize() int64 {
	t := ix.res.Table
	size := int64(len(ix.res.Codes))
	size += 4 * int64((pq.NumCentroids+1)*t.Dim())
	size += 4 * int64(len(ix.res.BaseNorms))
	if dt := ix.res.DiskTable; dt != nil {
		size += 4 * int64((pq.NumCentroids+1)*dt.Dim())
	}
	size += ix.nodeCache.Load().Bytes()

	perSlot := int64(t.TableLen()+2*int(ix.hdr.Dim))*4 + int64(ix.hdr.NumPoints/8) +
		int64(DefaultBeamWidth*ix.hdr.ReadLen())
	size += perSlot * int64(ix.pool.Size())
	if ix.tracker != nil {
		size += 4 * int64(ix.hdr.NumPoints)
	}
	return size
}

// HotNodes returns up to n of the most visited nodes when visit tracking
// is enabled, nil otherwise. Feed the result to LoadCacheList.
func (ix *Index) HotNodes(n int) []uint32 {
	if ix.tracker == nil {
		return nil
	}
	return ix.tracker.TopN(n)
}

// ReadStats returns the cumulative sector read counters of the index.
func (ix *Index) ReadStats() (requests, bytes int64) {
	s := ix.reader.Stats()
	return s.Requests, s.Bytes
}

func (ix *Index) checkOpen() error {
	if ix.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close stops a running cache task, waits for it, releases the node cache
// and closes the blob. Queries must not be running.
func (ix *Index) Close() error {
	ix.taskMu.Lock()
	closing := ix.closed.CompareAndSwap(false, true)
	ix.taskMu.Unlock()
	if !closing {
		return nil
	}
	if ix.task.RequestStop() {
		ix.logger.Info("stopping cache task for close")
	}
	ix.taskWG.Wait()
	ix.nodeCache.Clear()

	var errs []error
	if err := ix.blob.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close disk index: %w", err))
	}
	return errors.Join(errs...)
}
