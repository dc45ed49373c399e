package diskann

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pqflash/blobstore"
	"github.com/hupe1980/pqflash/internal/resource"
	"github.com/hupe1980/pqflash/internal/testutil"
)

func TestCacheBFSLevels(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{Medoids: 2})
	ix := openFixture(t, f)

	ids, err := ix.CacheBFSLevels(t.Context(), 100)
	require.NoError(t, err)
	require.Len(t, ids, 100)

	medoids := slices.Clone(f.Header.Medoids)
	slices.Sort(medoids)
	assert.Equal(t, medoids, ids[:2])

	uniq := slices.Clone(ids)
	slices.Sort(uniq)
	assert.Len(t, slices.Compact(uniq), 100)

	// The second level is exactly the sorted neighborhood of the medoids.
	level := map[uint32]bool{}
	for _, m := range medoids {
		for _, nb := range f.Graph[m] {
			if !slices.Contains(medoids, nb) {
				level[nb] = true
			}
		}
	}
	second := ids[2 : 2+len(level)]
	assert.True(t, slices.IsSorted(second))
	for _, id := range second {
		assert.True(t, level[id])
	}

	again, err := ix.CacheBFSLevels(t.Context(), 100)
	require.NoError(t, err)
	assert.Equal(t, ids, again)

	all, err := ix.CacheBFSLevels(t.Context(), 10*testPoints)
	require.NoError(t, err)
	assert.Len(t, all, testPoints)
}

func TestLoadCacheList_NoReadsForCachedNodes(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	uncached := openFixture(t, f)
	ix := openFixture(t, f, WithBFSCache(testPoints))
	require.Equal(t, testPoints, ix.CachedNodes())

	before, _ := ix.ReadStats()
	for _, q := range testQueries(10) {
		want, err := uncached.Search(t.Context(), q, SearchParams{K: 10})
		require.NoError(t, err)

		var st QueryStats
		got, err := ix.Search(t.Context(), q, SearchParams{K: 10, Stats: &st})
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Zero(t, st.NumIOs)
		assert.Equal(t, st.NumCmps, st.CacheHits)
	}
	after, _ := ix.ReadStats()
	assert.Equal(t, before, after)
}

func TestLoadCacheList_Partial(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	ix := openFixture(t, f)
	size := ix.CalSize()

	m := f.Header.Medoids[0]
	ids := []uint32{m, (m + 1) % testPoints, (m + 1) % testPoints, (m + 2) % testPoints}
	require.NoError(t, ix.LoadCacheList(t.Context(), ids))
	assert.Equal(t, 3, ix.CachedNodes())
	want := slices.Clone(ids)
	slices.Sort(want)
	assert.Equal(t, slices.Compact(want), ix.CachedIDs())
	assert.Greater(t, ix.CalSize(), size)

	var st QueryStats
	_, err := ix.Search(t.Context(), testQueries(1)[0], SearchParams{K: 10, Stats: &st})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.CacheHits, 1)
	assert.Positive(t, st.NumIOs)

	err = ix.LoadCacheList(t.Context(), []uint32{1, testPoints + 3})
	var rangeErr *ErrIDOutOfRange
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, 3, ix.CachedNodes())
}

func TestLoadCacheList_MemoryLimit(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 4096})
	ix := openFixture(t, f, WithResourceController(rc))

	require.NoError(t, ix.LoadCacheList(t.Context(), []uint32{1, 2}))
	used := rc.MemoryUsage()
	assert.Positive(t, used)

	ids := make([]uint32, 200)
	for i := range ids {
		ids[i] = uint32(i)
	}
	err := ix.LoadCacheList(t.Context(), ids)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Equal(t, 2, ix.CachedNodes())
	assert.Equal(t, used, rc.MemoryUsage())

	require.NoError(t, ix.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestOpen_CacheList(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	s := f.Store()
	require.NoError(t, WriteCacheList(t.Context(), s, "hot.cl", []uint32{3, 1, 4, 1, 5}, CompressionZSTD))

	ids, err := ReadCacheList(t.Context(), s, "hot.cl")
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 1, 4, 1, 5}, ids)

	ix, err := Open(t.Context(), s, f.Config.Prefix, WithCacheList(ids), WithBFSCache(500))
	require.NoError(t, err)
	defer ix.Close()
	assert.Equal(t, 4, ix.CachedNodes())

	_, err = ReadCacheList(t.Context(), s, "missing.cl")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestHotNodes(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	assert.Nil(t, openFixture(t, f).HotNodes(10))

	ix := openFixture(t, f, WithVisitTracking(2000))
	for _, q := range testQueries(10) {
		_, err := ix.Search(t.Context(), q, SearchParams{K: 10})
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(10), ix.tracker.Count(f.Header.Medoids[0]))
	hot := ix.HotNodes(10)
	require.Len(t, hot, 10)
	assert.Equal(t, uint32(10), ix.tracker.Count(hot[0]))
	require.NoError(t, ix.LoadCacheList(t.Context(), hot))
	assert.Equal(t, 10, ix.CachedNodes())
}

func TestGenerateCacheListAsync(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	ix := openFixture(t, f)
	assert.Equal(t, TaskIdle, ix.CacheTaskState())
	assert.False(t, ix.StopCacheTask())
	require.NoError(t, ix.WaitCacheTask(t.Context()))

	id, err := ix.GenerateCacheListAsync(t.Context(), testQueries(20), SampleCacheParams{LSearch: 50, NumNodes: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, ix.WaitCacheTask(t.Context()))
	assert.Equal(t, TaskCompleted, ix.CacheTaskState())
	assert.Positive(t, ix.CachedNodes())
	assert.LessOrEqual(t, ix.CachedNodes(), 100)

	// Every sample starts at the medoid, so its neighborhood is cached.
	var st QueryStats
	_, err = ix.Search(t.Context(), testQueries(1)[0], SearchParams{K: 10, Stats: &st})
	require.NoError(t, err)
	assert.Positive(t, st.CacheHits)

	_, err = ix.GenerateCacheListAsync(t.Context(), [][]float32{{1, 2}}, SampleCacheParams{NumNodes: 10})
	var dimErr *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestGenerateCacheListAsync_StopKeepsOldCache(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	rc := resource.NewController(resource.Config{MaxBackgroundTasks: 1})
	ix := openFixture(t, f, WithResourceController(rc), WithBFSCache(10))
	require.Equal(t, 10, ix.CachedNodes())

	// Hold the only background slot so the task blocks before its first sample.
	require.True(t, rc.TryAcquireBackground())

	_, err := ix.GenerateCacheListAsync(t.Context(), testQueries(5), SampleCacheParams{NumNodes: 50})
	require.NoError(t, err)
	assert.Equal(t, TaskRunning, ix.CacheTaskState())

	_, err = ix.GenerateCacheListAsync(t.Context(), testQueries(5), SampleCacheParams{NumNodes: 50})
	assert.ErrorIs(t, err, ErrTaskBusy)

	assert.True(t, ix.StopCacheTask())
	assert.Equal(t, TaskStopRequested, ix.CacheTaskState())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ix.WaitCacheTask(ctx), context.DeadlineExceeded)

	rc.ReleaseBackground()
	assert.ErrorIs(t, ix.WaitCacheTask(t.Context()), ErrTaskStopped)
	assert.Equal(t, TaskKilled, ix.CacheTaskState())
	assert.Equal(t, 10, ix.CachedNodes())

	_, err = ix.GenerateCacheListAsync(t.Context(), testQueries(5), SampleCacheParams{NumNodes: 50})
	require.NoError(t, err)
	require.NoError(t, ix.WaitCacheTask(t.Context()))
	assert.Equal(t, TaskCompleted, ix.CacheTaskState())
}

func TestGenerateCacheListAsync_ContextCancelled(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	ix := openFixture(t, f, WithBFSCache(10))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := ix.GenerateCacheListAsync(ctx, testQueries(5), SampleCacheParams{NumNodes: 50})
	require.NoError(t, err)

	assert.ErrorIs(t, ix.WaitCacheTask(t.Context()), context.Canceled)
	assert.Equal(t, TaskKilled, ix.CacheTaskState())
	assert.Equal(t, 10, ix.CachedNodes())
}

func TestClose_StopsCacheTask(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	rc := resource.NewController(resource.Config{})
	ix, err := Open(t.Context(), f.Store(), f.Config.Prefix, WithResourceController(rc))
	require.NoError(t, err)

	require.True(t, rc.TryAcquireBackground())
	_, err = ix.GenerateCacheListAsync(t.Context(), testQueries(5), SampleCacheParams{NumNodes: 50})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ix.Close() }()

	// Close waits for the task, which waits for the slot.
	select {
	case <-done:
		t.Fatal("close returned while the cache task was running")
	case <-time.After(20 * time.Millisecond):
	}
	rc.ReleaseBackground()
	require.NoError(t, <-done)
	assert.Equal(t, TaskKilled, ix.CacheTaskState())
	assert.Zero(t, rc.MemoryUsage())
}

func TestGenerateCacheListAsync_Hook(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	type done struct {
		id    string
		nodes int
		err   error
	}
	ch := make(chan done, 1)
	ix := openFixture(t, f, WithCacheTaskHook(func(id string, nodes int, _ time.Duration, err error) {
		ch <- done{id, nodes, err}
	}))

	id, err := ix.GenerateCacheListAsync(t.Context(), testQueries(5), SampleCacheParams{NumNodes: 30})
	require.NoError(t, err)
	require.NoError(t, ix.WaitCacheTask(t.Context()))

	// The hook runs before the state turns terminal.
	got := <-ch
	assert.Equal(t, id, got.id)
	assert.NoError(t, got.err)
	assert.Equal(t, ix.CachedNodes(), got.nodes)
}

func TestGenerateCacheListAsync_RejectsZeroNodes(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	ix := openFixture(t, f, WithBFSCache(10))

	_, err := ix.GenerateCacheListAsync(t.Context(), testQueries(5), SampleCacheParams{})
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Equal(t, TaskIdle, ix.CacheTaskState())
	assert.Equal(t, 10, ix.CachedNodes())
}

func TestGenerateCacheListAsync_RacesClose(t *testing.T) {
	f := gaussianFixture(t, testutil.FixtureConfig{})
	for range 20 {
		ix, err := Open(t.Context(), f.Store(), f.Config.Prefix)
		require.NoError(t, err)

		started := make(chan error, 1)
		go func() {
			_, err := ix.GenerateCacheListAsync(t.Context(), testQueries(3), SampleCacheParams{NumNodes: 20})
			started <- err
		}()
		require.NoError(t, ix.Close())

		// Either the task started before Close and was waited for, or it
		// was refused.
		if err := <-started; err != nil {
			assert.ErrorIs(t, err, ErrClosed)
			continue
		}
		assert.True(t, ix.task.IsTerminal())
	}

	ix, err := Open(t.Context(), f.Store(), f.Config.Prefix)
	require.NoError(t, err)
	require.NoError(t, ix.Close())
	_, err = ix.GenerateCacheListAsync(t.Context(), testQueries(3), SampleCacheParams{NumNodes: 20})
	assert.ErrorIs(t, err, ErrClosed)
}
