package pqflash

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pqflash/blobstore"
	"github.com/hupe1980/pqflash/index/diskann"
	"github.com/hupe1980/pqflash/internal/testutil"
)

const (
	testPoints = 500
	testDim    = 16
)

func newTestFixture(t *testing.T, cfg testutil.FixtureConfig) *testutil.Fixture {
	t.Helper()
	f, err := testutil.NewFixture(cfg, testutil.NewRNG(42).GaussianVectors(testPoints, testDim))
	require.NoError(t, err)
	return f
}

func openTestDB(t *testing.T, f *testutil.Fixture, opts ...Option) *DB {
	t.Helper()
	db, err := Open(t.Context(), f.Store(), f.Config.Prefix, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testQuery() []float32 {
	return testutil.NewRNG(7).GaussianVectors(1, testDim)[0]
}

func ids(res []Result) []uint32 {
	out := make([]uint32, len(res))
	for i, r := range res {
		out[i] = r.ID
	}
	return out
}

func TestOpen(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	metrics := &BasicMetricsCollector{}
	db := openTestDB(t, f, WithMetricsCollector(metrics), WithBFSCache(50))

	st := db.Stats()
	assert.Equal(t, f.Config.Prefix, st.Prefix)
	assert.Equal(t, uint64(testPoints), st.NumPoints)
	assert.Equal(t, testDim, st.Dim)
	assert.Equal(t, MetricL2, st.Metric)
	assert.Equal(t, 50, st.CachedNodes)
	assert.Positive(t, st.ReservedBytes)
	assert.Equal(t, diskann.TaskIdle, st.CacheTask)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.CacheBuildCount)
	assert.Equal(t, int64(50), stats.CachedNodes)
}

func TestOpen_Errors(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})

	_, err := Open(t.Context(), blobstore.NewMemoryStore(), f.Config.Prefix)
	assert.ErrorIs(t, err, ErrNotFound)

	s := f.Store()
	bad := append([]byte(nil), f.Disk...)
	copy(bad, "JUNK")
	require.NoError(t, s.Put(t.Context(), f.DiskName(), bad))
	_, err = Open(t.Context(), s, f.Config.Prefix, WithBlockCache(1<<20))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestOpenLocal(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	dir := t.TempDir()
	require.NoError(t, f.Write(t.Context(), blobstore.NewLocalStore(dir)))

	want, err := openTestDB(t, f).KNNSearch(t.Context(), testQuery(), SearchParams{K: 10})
	require.NoError(t, err)

	for _, mmap := range []bool{false, true} {
		db, err := OpenLocal(t.Context(), dir, f.Config.Prefix, WithMmap(mmap))
		require.NoError(t, err)
		got, err := db.KNNSearch(t.Context(), testQuery(), SearchParams{K: 10})
		require.NoError(t, err)
		assert.Equal(t, want, got)
		require.NoError(t, db.Close())
	}
}

func TestKNNSearch(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	metrics := &BasicMetricsCollector{}
	db := openTestDB(t, f, WithMetricsCollector(metrics))
	q := testQuery()

	var st QueryStats
	res, err := db.KNNSearch(t.Context(), q, SearchParams{K: 10, Stats: &st})
	require.NoError(t, err)
	require.Len(t, res, 10)
	truth := testutil.ExactTopK(q, f.Vectors, 10, MetricL2, nil)
	assert.GreaterOrEqual(t, testutil.Recall(truth, ids(res)), 0.8)
	assert.Positive(t, st.NumIOs)

	// Caller stats accumulate across queries.
	first := st.NumIOs
	_, err = db.KNNSearch(t.Context(), q, SearchParams{K: 10, Stats: &st})
	require.NoError(t, err)
	assert.Equal(t, 2*first, st.NumIOs)

	_, err = db.KNNSearch(t.Context(), q, SearchParams{K: 0})
	assert.ErrorIs(t, err, ErrInvalidK)

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
	assert.Equal(t, int64(2*first), stats.SearchIOs)
}

func TestKNNSearch_TranslatesErrors(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	db := openTestDB(t, f)

	_, err := db.KNNSearch(t.Context(), []float32{1, 2, 3}, SearchParams{K: 1})
	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, testDim, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)
	var inner *diskann.ErrDimensionMismatch
	assert.ErrorAs(t, err, &inner)

	_, err = db.GetVectors(t.Context(), []uint32{testPoints})
	var rangeErr *ErrIDOutOfRange
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, uint32(testPoints), rangeErr.ID)

	require.NoError(t, db.Close())
	_, err = db.KNNSearch(t.Context(), testQuery(), SearchParams{K: 1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))
	plain := errors.New("boom")
	assert.Equal(t, plain, translateError(plain))
}

func TestGetVectors(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	db := openTestDB(t, f)

	got, err := db.GetVectors(t.Context(), []uint32{3, 7})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDeltaSlice(t, f.Vectors[3], got[0], 1e-6)
	assert.InDeltaSlice(t, f.Vectors[7], got[1], 1e-6)
}

func TestRangeSearch(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	metrics := &BasicMetricsCollector{}
	db := openTestDB(t, f, WithMetricsCollector(metrics))
	q := testQuery()

	truth := testutil.ExactTopK(q, f.Vectors, 20, MetricL2, nil)
	radius := truth[19].Score
	res, err := db.RangeSearch(t.Context(), q, RangeParams{Radius: radius})
	require.NoError(t, err)
	assert.NotEmpty(t, res)
	for _, r := range res {
		assert.Less(t, r.Distance, radius)
	}

	batch, err := db.RangeSearchBatch(t.Context(), [][]float32{q, q}, RangeParams{Radius: radius})
	require.NoError(t, err)
	assert.Equal(t, []int{0, len(res), 2 * len(res)}, batch.Lims)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.RangeCount)
	assert.Equal(t, int64(3*len(res)), stats.RangeResults)
}

func TestBlockCache(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	want, err := openTestDB(t, f).KNNSearch(t.Context(), testQuery(), SearchParams{K: 10})
	require.NoError(t, err)

	t.Run("lru", func(t *testing.T) {
		db := openTestDB(t, f, WithLRUBlockCache(1<<20))
		for range 2 {
			got, err := db.KNNSearch(t.Context(), testQuery(), SearchParams{K: 10})
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		st := db.Stats()
		assert.Positive(t, st.BlockCacheHits)
		assert.Positive(t, st.BlockCacheMisses)
		assert.Positive(t, st.ReservedBytes)
	})

	t.Run("ristretto", func(t *testing.T) {
		db := openTestDB(t, f, WithBlockCache(1<<20), WithBlockSize(8192))
		got, err := db.KNNSearch(t.Context(), testQuery(), SearchParams{K: 10})
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Positive(t, db.Stats().BlockCacheMisses)
	})
}

func TestCacheBuilds(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	metrics := &BasicMetricsCollector{}
	db := openTestDB(t, f, WithMetricsCollector(metrics), WithVisitTracking(1000))

	require.NoError(t, db.CacheBFS(t.Context(), 40))
	assert.Equal(t, 40, db.CachedNodes())

	_, err := db.Search(testQuery()).KNN(5).Execute(t.Context())
	require.NoError(t, err)
	hot := db.HotNodes(5)
	require.Len(t, hot, 5)
	require.NoError(t, db.LoadCacheList(t.Context(), hot))
	assert.Equal(t, 5, db.CachedNodes())

	samples := testutil.NewRNG(9).GaussianVectors(10, testDim)
	id, err := db.GenerateCacheList(t.Context(), samples, SampleCacheParams{NumNodes: 60})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, db.WaitCacheTask(t.Context()))
	assert.Equal(t, diskann.TaskCompleted, db.CacheTaskState())
	assert.False(t, db.StopCacheTask())

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.CacheBuildCount)
	assert.Zero(t, stats.CacheBuildErrors)
	assert.Equal(t, int64(db.CachedNodes()), stats.CachedNodes)

	err = db.LoadCacheList(t.Context(), []uint32{testPoints})
	var rangeErr *ErrIDOutOfRange
	assert.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, int64(1), metrics.GetStats().CacheBuildErrors)
}

func TestCacheListArtifact(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	s := f.Store()
	require.NoError(t, WriteCacheList(t.Context(), s, "hot.cl", []uint32{4, 2, 9}, CompressionLZ4))

	list, err := ReadCacheList(t.Context(), s, "hot.cl")
	require.NoError(t, err)
	assert.Equal(t, []uint32{4, 2, 9}, list)

	db, err := Open(t.Context(), s, f.Config.Prefix, WithCacheList(list))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 3, db.CachedNodes())
}

func TestResourceLimits(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	_, err := Open(t.Context(), f.Store(), f.Config.Prefix,
		WithResourceLimits(ResourceLimits{MemoryLimitBytes: 64}), WithBFSCache(100))
	assert.Error(t, err)

	db := openTestDB(t, f, WithResourceLimits(ResourceLimits{MemoryLimitBytes: 1 << 20}))
	require.NoError(t, db.CacheBFS(t.Context(), 10))
	assert.Positive(t, db.Stats().ReservedBytes)
}

func TestLogging(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db := openTestDB(t, f, WithLogger(logger))
	assert.Contains(t, buf.String(), "index opened")

	_, err := db.KNNSearch(t.Context(), testQuery(), SearchParams{K: 3})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "search completed")

	_, err = db.KNNSearch(t.Context(), testQuery(), SearchParams{K: -1})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "search failed")
}

func TestSearchBuilder(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	db := openTestDB(t, f)
	q := testQuery()

	want, err := db.KNNSearch(t.Context(), q, SearchParams{K: 10, LSearch: 50, BeamWidth: 2})
	require.NoError(t, err)
	got, err := db.Search(q).KNN(10).L(50).BeamWidth(2).Execute(t.Context())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	first, ok, err := db.Search(q).L(50).BeamWidth(2).First(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want[0], first)

	odd, err := db.Search(q).Filter(func(id uint32) bool { return id%2 == 1 }).Execute(t.Context())
	require.NoError(t, err)
	require.Len(t, odd, 10)
	for _, r := range odd {
		assert.Equal(t, uint32(1), r.ID%2)
	}

	bm := roaring.New()
	bm.AddRange(0, 250)
	allowed, err := db.Search(q).Exclude(NewAllowList(bm)).Execute(t.Context())
	require.NoError(t, err)
	for _, r := range allowed {
		assert.Less(t, r.ID, uint32(250))
	}

	var st QueryStats
	trace := &Trace{}
	_, err = db.Search(q).WithStats(&st).WithTrace(trace).IOLimit(1000).Execute(t.Context())
	require.NoError(t, err)
	assert.Positive(t, st.NumIOs)
	assert.NotEmpty(t, trace.Visited())
}

func TestSearchBuilder_Stream(t *testing.T) {
	f := newTestFixture(t, testutil.FixtureConfig{})
	db := openTestDB(t, f)
	q := testQuery()

	var st QueryStats
	seen := map[uint32]bool{}
	for r, err := range db.Search(q).L(testPoints).WithStats(&st).Stream(t.Context()) {
		require.NoError(t, err)
		assert.False(t, seen[r.ID])
		seen[r.ID] = true
	}
	assert.Len(t, seen, testPoints)
	assert.Positive(t, st.NumIOs)

	n := 0
	for _, err := range db.Search(q).Stream(t.Context()) {
		require.NoError(t, err)
		n++
		if n == 5 {
			break
		}
	}
	assert.Equal(t, 5, n)

	var streamErr error
	for _, err := range db.Search([]float32{1}).Stream(t.Context()) {
		streamErr = err
	}
	var dimErr *ErrDimensionMismatch
	assert.ErrorAs(t, streamErr, &dimErr)
}
