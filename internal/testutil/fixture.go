package testutil

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/hupe1980/pqflash/blobstore"
	"github.com/hupe1980/pqflash/distance"
	"github.com/hupe1980/pqflash/internal/kmeans"
	"github.com/hupe1980/pqflash/internal/layout"
	"github.com/hupe1980/pqflash/internal/pq"
)

// FixtureConfig describes a fixture index. Zero values pick small defaults.
type FixtureConfig struct {
	Prefix   string
	Metric   distance.Metric
	DataType layout.DataType
	// Degree is the max graph degree. Defaults to 16.
	Degree int
	// PQChunks is the resident PQ chunk count. Defaults to min(dim, 8).
	PQChunks int
	// DiskPQChunks > 0 stores node coordinates as disk-PQ codes.
	DiskPQChunks int
	// Medoids is the number of entry points. Defaults to 1.
	Medoids   int
	Centroids bool
	Frozen    bool
	Reorder   bool
	// LongNodes pads node records past one sector.
	LongNodes bool
	// NoNorms omits base norms from cosine fixtures.
	NoNorms bool
	Seed    int64
}

// Fixture is an index laid out in memory.
type Fixture struct {
	Config FixtureConfig
	// Vectors are the query-space vectors, rounded for integer data types.
	Vectors [][]float32
	// DiskVectors are the stored vectors (augmented for inner product),
	// including the frozen point when present.
	DiskVectors [][]float32
	Graph       [][]uint32
	Header      *layout.Header
	Resident    *layout.Resident

	Disk         []byte
	ResidentBlob []byte
}

// DiskName returns the disk index blob name.
func (f *Fixture) DiskName() string { return f.Config.Prefix + "_disk.index" }

// ResidentName returns the resident blob name.
func (f *Fixture) ResidentName() string { return f.Config.Prefix + "_pq.bin" }

// Write stores both blobs.
func (f *Fixture) Write(ctx context.Context, s blobstore.Store) error {
	if err := s.Put(ctx, f.DiskName(), f.Disk); err != nil {
		return err
	}
	return s.Put(ctx, f.ResidentName(), f.ResidentBlob)
}

// Store returns a MemoryStore holding the fixture.
func (f *Fixture) Store() *blobstore.MemoryStore {
	s := blobstore.NewMemoryStore()
	_ = f.Write(context.Background(), s)
	return s
}

// NewFixture lays out vectors as a disk index.
func NewFixture(cfg FixtureConfig, vectors [][]float32) (*Fixture, error) {
	if len(vectors) < 2 {
		return nil, fmt.Errorf("fixture needs at least 2 vectors, got %d", len(vectors))
	}
	if cfg.Metric == distance.MetricInnerProduct && cfg.DataType != layout.Float32 {
		return nil, fmt.Errorf("inner-product fixtures store augmented float32 vectors")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "fixture"
	}
	if cfg.Degree == 0 {
		cfg.Degree = 16
	}
	if cfg.Medoids == 0 {
		cfg.Medoids = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = 4711
	}
	rng := NewRNG(cfg.Seed)

	qdim := len(vectors[0])
	f := &Fixture{Config: cfg, Vectors: make([][]float32, len(vectors))}
	for i, v := range vectors {
		f.Vectors[i] = roundFor(cfg.DataType, v)
	}

	base := f.Vectors
	if cfg.Frozen {
		base = append(append([][]float32(nil), base...), mean(f.Vectors))
	}
	n := len(base)

	var maxNorm float32
	disk := base
	if cfg.Metric == distance.MetricInnerProduct {
		maxNorm = MaxNorm(base)
		disk = augment(base, maxNorm)
	}
	f.DiskVectors = disk
	dim := len(disk[0])

	pqSpace := disk
	if cfg.Metric == distance.MetricCosine {
		pqSpace = normalized(disk)
	}
	if cfg.PQChunks == 0 {
		cfg.PQChunks = min(dim, 8)
	}
	table, err := trainTable(pqSpace, cfg.PQChunks, rng)
	if err != nil {
		return nil, err
	}
	codes := make([]byte, n*cfg.PQChunks)
	for i, v := range pqSpace {
		table.Encode(v, codes[i*cfg.PQChunks:(i+1)*cfg.PQChunks])
	}

	res := &layout.Resident{NumPoints: uint64(n), Table: table, Codes: codes}
	if cfg.Metric == distance.MetricCosine && !cfg.NoNorms {
		res.BaseNorms = make([]float32, n)
		for i, v := range base {
			res.BaseNorms[i] = distance.Norm(v)
		}
	}

	var diskCodes []byte
	if cfg.DiskPQChunks > 0 {
		if res.DiskTable, err = trainTable(disk, cfg.DiskPQChunks, rng); err != nil {
			return nil, err
		}
		diskCodes = make([]byte, n*cfg.DiskPQChunks)
		for i, v := range disk {
			res.DiskTable.Encode(v, diskCodes[i*cfg.DiskPQChunks:(i+1)*cfg.DiskPQChunks])
		}
	}
	f.Resident = res
	f.ResidentBlob = res.Encode()

	f.Graph = buildGraph(pqSpace, cfg.Degree, rng)

	h := &layout.Header{
		NumPoints:    uint64(n),
		Dim:          uint32(dim),
		DataType:     cfg.DataType,
		Metric:       cfg.Metric,
		DiskPQChunks: uint32(cfg.DiskPQChunks),
		MaxDegree:    uint32(cfg.Degree),
		MaxBaseNorm:  maxNorm,
	}
	h.MaxNodeLen = uint64(h.CoordBytes() + 4 + 4*cfg.Degree)
	if cfg.LongNodes && h.MaxNodeLen <= layout.SectorLen {
		h.MaxNodeLen = layout.SectorLen + 8
	}
	if h.MaxNodeLen <= layout.SectorLen {
		h.NodesPerSector = layout.SectorLen / h.MaxNodeLen
	}

	h.Medoids = pickMedoids(f.Vectors, cfg.Medoids, rng)
	if cfg.Frozen {
		h.NumFrozen = 1
		h.FrozenLocation = uint64(n - 1)
		h.Medoids[0] = uint32(n - 1)
		f.Graph[n-1] = frozenEdges(n-1, cfg.Degree, rng)
	}
	if cfg.Centroids {
		h.CentroidDim = uint32(qdim)
		for _, m := range h.Medoids {
			h.Centroids = append(h.Centroids, disk[m][:qdim]...)
		}
	}
	h.MetadataSectors = uint32((h.EncodedLen() + layout.SectorLen - 1) / layout.SectorLen)

	if cfg.Reorder {
		h.ReorderDim = uint32(dim)
		h.ReorderVecsPerSector = uint32(layout.SectorLen / (dim * 4))
		h.ReorderStartSector = uint64(h.MetadataSectors) + h.NodeRegionSectors()
	}

	end := h.NodeRegionEnd()
	if h.HasReorderData() {
		end = h.ReorderRegionEnd()
	}
	buf := make([]byte, end)
	copy(buf, h.Encode())

	coords := make([]byte, h.CoordBytes())
	for i := range n {
		id := uint32(i)
		if diskCodes != nil {
			copy(coords, diskCodes[i*cfg.DiskPQChunks:(i+1)*cfg.DiskPQChunks])
		} else {
			layout.EncodeCoords(cfg.DataType, disk[i], coords)
		}
		off := h.NodeSectorOffset(id) + int64(h.NodeOffsetInSector(id))
		h.EncodeNode(buf[off:off+int64(h.MaxNodeLen)], coords, f.Graph[i])

		if h.HasReorderData() {
			sec, in := h.ReorderSectorOffset(id)
			layout.EncodeCoords(layout.Float32, disk[i], buf[sec+int64(in):])
		}
	}

	if err := h.Validate(int64(len(buf))); err != nil {
		return nil, err
	}
	f.Header = h
	f.Disk = buf
	return f, nil
}

func roundFor(t layout.DataType, v []float32) []float32 {
	out := append([]float32(nil), v...)
	if t == layout.Float32 {
		return out
	}
	lo, hi := float32(-128), float32(127)
	if t == layout.Uint8 {
		lo, hi = 0, 255
	}
	for i, x := range out {
		out[i] = min(max(float32(math.Round(float64(x))), lo), hi)
	}
	return out
}

func mean(vectors [][]float32) []float32 {
	out := make([]float32, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			out[i] += x
		}
	}
	for i := range out {
		out[i] /= float32(len(vectors))
	}
	return out
}

// augment maps x to [x/M, sqrt(1-|x/M|²)] so that L2 order matches inner-product order.
func augment(vectors [][]float32, maxNorm float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		a := make([]float32, len(v)+1)
		var sq float32
		for j, x := range v {
			a[j] = x / maxNorm
			sq += a[j] * a[j]
		}
		a[len(v)] = float32(math.Sqrt(math.Max(0, float64(1-sq))))
		out[i] = a
	}
	return out
}

func normalized(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		c := append([]float32(nil), v...)
		distance.NormalizeL2InPlace(c)
		out[i] = c
	}
	return out
}

// trainTable clusters every chunk of the centered data into pq.NumCentroids
// pivots.
func trainTable(vectors [][]float32, chunks int, rng *RNG) (*pq.Table, error) {
	dim := len(vectors[0])
	if chunks > dim {
		return nil, fmt.Errorf("%d chunks exceed dim %d", chunks, dim)
	}
	centroid := mean(vectors)
	offsets := make([]uint32, chunks+1)
	for c := range offsets {
		offsets[c] = uint32(c * dim / chunks)
	}

	pivots := make([]float32, pq.NumCentroids*dim)
	for c := range chunks {
		lo, hi := int(offsets[c]), int(offsets[c+1])
		sub := hi - lo
		data := make([]float32, 0, len(vectors)*sub)
		for _, v := range vectors {
			for d := lo; d < hi; d++ {
				data = append(data, v[d]-centroid[d])
			}
		}
		centers, err := kmeans.Train(context.Background(), data, sub, kmeans.Config{
			K:       pq.NumCentroids,
			MaxIter: 6,
			Seed:    int64(rng.Intn(1 << 30)),
		})
		if err != nil {
			return nil, err
		}
		for j := range pq.NumCentroids {
			copy(pivots[j*dim+lo:j*dim+hi], centers[j*sub:(j+1)*sub])
		}
	}
	return pq.New(dim, pivots, centroid, offsets)
}

// buildGraph links every node to its nearest neighbors, its successor and
// random long-range nodes.
func buildGraph(vectors [][]float32, degree int, rng *RNG) [][]uint32 {
	n := len(vectors)
	knn := min(degree*3/4, n-1)
	graph := make([][]uint32, n)

	workers := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			type cand struct {
				id uint32
				d  float32
			}
			cands := make([]cand, 0, n)
			for i := w; i < n; i += workers {
				cands = cands[:0]
				for j := range n {
					if j != i {
						cands = append(cands, cand{uint32(j), distance.SquaredL2(vectors[i], vectors[j])})
					}
				}
				sort.Slice(cands, func(a, b int) bool {
					if cands[a].d != cands[b].d {
						return cands[a].d < cands[b].d
					}
					return cands[a].id < cands[b].id
				})
				nbrs := make([]uint32, 0, degree)
				for _, c := range cands[:knn] {
					nbrs = append(nbrs, c.id)
				}
				graph[i] = nbrs
			}
		}()
	}
	wg.Wait()

	for i := range n {
		graph[i] = addEdge(graph[i], uint32((i+1)%n), uint32(i), degree)
		for tries := 0; len(graph[i]) < degree && tries < 4*degree; tries++ {
			graph[i] = addEdge(graph[i], uint32(rng.Intn(n)), uint32(i), degree)
		}
	}
	return graph
}

func frozenEdges(self, degree int, rng *RNG) []uint32 {
	var nbrs []uint32
	for tries := 0; len(nbrs) < degree && tries < 4*degree; tries++ {
		nbrs = addEdge(nbrs, uint32(rng.Intn(self)), uint32(self), degree)
	}
	return nbrs
}

func addEdge(nbrs []uint32, to, self uint32, degree int) []uint32 {
	if to == self || len(nbrs) >= degree {
		return nbrs
	}
	for _, nb := range nbrs {
		if nb == to {
			return nbrs
		}
	}
	return append(nbrs, to)
}

// pickMedoids returns the point nearest the mean followed by random points.
func pickMedoids(vectors [][]float32, count int, rng *RNG) []uint32 {
	c := mean(vectors)
	best, bestDist := 0, float32(math.MaxFloat32)
	for i, v := range vectors {
		if d := distance.SquaredL2(c, v); d < bestDist {
			best, bestDist = i, d
		}
	}
	medoids := []uint32{uint32(best)}
	seen := map[uint32]bool{uint32(best): true}
	for len(medoids) < min(count, len(vectors)) {
		id := uint32(rng.Intn(len(vectors)))
		if !seen[id] {
			seen[id] = true
			medoids = append(medoids, id)
		}
	}
	return medoids
}
