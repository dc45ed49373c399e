package layout

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/pqflash/distance"
)

// CoordBytes returns the stored coordinate size of one node.
func (h *Header) CoordBytes() int {
	if h.DiskPQChunks > 0 {
		return int(h.DiskPQChunks)
	}
	return int(h.Dim) * h.DataType.Size()
}

// QueryDim returns the dimensionality callers query with.
func (h *Header) QueryDim() int {
	if h.Metric == distance.MetricInnerProduct {
		return int(h.Dim) - 1
	}
	return int(h.Dim)
}

// LongNodes reports whether each node spans one or more whole sectors.
func (h *Header) LongNodes() bool { return h.NodesPerSector == 0 }

// SectorsPerNode returns the sector count of a long node (1 otherwise).
func (h *Header) SectorsPerNode() uint64 {
	if !h.LongNodes() {
		return 1
	}
	return (h.MaxNodeLen + SectorLen - 1) / SectorLen
}

// ReadLen returns the number of bytes read to fetch one node.
func (h *Header) ReadLen() int { return int(h.SectorsPerNode()) * SectorLen }

// NodeSectorOffset returns the byte offset of the first sector holding id.
func (h *Header) NodeSectorOffset(id uint32) int64 {
	return int64((uint64(h.MetadataSectors) + h.NodeSectorIndex(id)) * SectorLen)
}

// NodeOffsetInSector returns the offset of id's record within the bytes read
// from NodeSectorOffset.
func (h *Header) NodeOffsetInSector(id uint32) int {
	if h.LongNodes() {
		return 0
	}
	return int(uint64(id)%h.NodesPerSector) * int(h.MaxNodeLen)
}

// NodeSectorIndex returns the index of the sector holding id, relative to the
// node region. Nodes sharing a sector share an index.
func (h *Header) NodeSectorIndex(id uint32) uint64 {
	if h.LongNodes() {
		return uint64(id) * h.SectorsPerNode()
	}
	return uint64(id) / h.NodesPerSector
}

// NodeRegionSectors returns the number of sectors holding node records.
func (h *Header) NodeRegionSectors() uint64 {
	if h.LongNodes() {
		return h.NumPoints * h.SectorsPerNode()
	}
	return (h.NumPoints + h.NodesPerSector - 1) / h.NodesPerSector
}

// NodeRegionEnd returns the byte offset just past the node region.
func (h *Header) NodeRegionEnd() int64 {
	return int64((uint64(h.MetadataSectors) + h.NodeRegionSectors()) * SectorLen)
}

// HasReorderData reports whether full-precision reorder vectors are stored.
func (h *Header) HasReorderData() bool { return h.ReorderVecsPerSector > 0 }

// ReorderSectorOffset returns the sector offset holding id's reorder vector
// and the vector's offset within that sector.
func (h *Header) ReorderSectorOffset(id uint32) (int64, int) {
	vps := uint64(h.ReorderVecsPerSector)
	sector := h.ReorderStartSector + uint64(id)/vps
	return int64(sector * SectorLen), int(uint64(id)%vps) * int(h.ReorderDim) * 4
}

// ReorderRegionEnd returns the byte offset just past the reorder region.
func (h *Header) ReorderRegionEnd() int64 {
	vps := uint64(h.ReorderVecsPerSector)
	return int64((h.ReorderStartSector + (h.NumPoints+vps-1)/vps) * SectorLen)
}

// IsFrozen reports whether id is a frozen (traversal-only) point.
func (h *Header) IsFrozen(id uint32) bool {
	return h.NumFrozen > 0 && uint64(id) == h.FrozenLocation
}

// Validate checks geometry against itself and the blob size.
func (h *Header) Validate(blobSize int64) error {
	if h.NumPoints == 0 {
		return formatErr("index has no points")
	}
	if h.NumPoints > math.MaxUint32 {
		return formatErr("%d points exceed the id space", h.NumPoints)
	}
	if h.DataType > Uint8 {
		return formatErr("unknown data type %d", h.DataType)
	}
	if !h.Metric.Valid() {
		return formatErr("unknown metric %d", h.Metric)
	}
	if h.Dim == 0 || (h.Metric == distance.MetricInnerProduct && h.Dim < 2) {
		return formatErr("dimension %d invalid for %s", h.Dim, h.Metric)
	}
	if h.DiskPQChunks > 0 && h.DataType != Float32 {
		return formatErr("disk-PQ coordinates require float32 data")
	}
	if h.MaxDegree == 0 || h.MaxDegree > MaxGraphDegree {
		return formatErr("max degree %d outside (0, %d]", h.MaxDegree, MaxGraphDegree)
	}

	minLen := uint64(h.CoordBytes()) + 4 + 4*uint64(h.MaxDegree)
	if h.MaxNodeLen < minLen {
		fit := (int64(h.MaxNodeLen) - int64(h.CoordBytes()) - 4) / 4
		return formatErr("header claims %d neighbors but a %d-byte node holds at most %d", h.MaxDegree, h.MaxNodeLen, max(fit, 0))
	}
	if h.NodesPerSector > 0 {
		if h.MaxNodeLen > SectorLen || h.NodesPerSector != SectorLen/h.MaxNodeLen {
			return formatErr("%d nodes per sector inconsistent with node length %d", h.NodesPerSector, h.MaxNodeLen)
		}
	} else if h.MaxNodeLen <= SectorLen {
		return formatErr("long-node layout with node length %d that fits a sector", h.MaxNodeLen)
	}

	if h.MetadataSectors == 0 || uint64(h.EncodedLen()) > uint64(h.MetadataSectors)*SectorLen {
		return formatErr("metadata of %d bytes does not fit %d sectors", h.EncodedLen(), h.MetadataSectors)
	}

	if len(h.Medoids) == 0 {
		return formatErr("no entry points")
	}
	for _, m := range h.Medoids {
		if uint64(m) >= h.NumPoints {
			return formatErr("entry point %d out of range [0, %d)", m, h.NumPoints)
		}
	}
	if h.CentroidDim > 0 {
		if int(h.CentroidDim) != h.QueryDim() {
			return formatErr("centroid dim %d, want %d", h.CentroidDim, h.QueryDim())
		}
		if len(h.Centroids) != len(h.Medoids)*int(h.CentroidDim) {
			return formatErr("%d centroid values for %d entry points", len(h.Centroids), len(h.Medoids))
		}
	}

	if h.NumFrozen > 1 {
		return formatErr("%d frozen points, at most 1 supported", h.NumFrozen)
	}
	if h.NumFrozen == 1 && h.FrozenLocation >= h.NumPoints {
		return formatErr("frozen point %d out of range", h.FrozenLocation)
	}

	if h.ReorderVecsPerSector > 0 || h.ReorderDim > 0 {
		if h.ReorderDim != h.Dim {
			return formatErr("reorder dim %d, want %d", h.ReorderDim, h.Dim)
		}
		if want := SectorLen / (h.ReorderDim * 4); want == 0 || h.ReorderVecsPerSector != want {
			return formatErr("%d reorder vectors per sector inconsistent with dim %d", h.ReorderVecsPerSector, h.ReorderDim)
		}
		if int64(h.ReorderStartSector)*SectorLen < h.NodeRegionEnd() {
			return formatErr("reorder region at sector %d overlaps nodes", h.ReorderStartSector)
		}
		if blobSize < h.ReorderRegionEnd() {
			return formatErr("blob of %d bytes shorter than reorder region end %d", blobSize, h.ReorderRegionEnd())
		}
	}

	if blobSize < h.NodeRegionEnd() {
		return formatErr("blob of %d bytes shorter than node region end %d", blobSize, h.NodeRegionEnd())
	}
	return nil
}

// DecodeNode splits a node record into coordinate bytes and neighbor ids.
// Neighbors are appended to nbrs[:0].
func (h *Header) DecodeNode(rec []byte, nbrs []uint32) ([]byte, []uint32, error) {
	cb := h.CoordBytes()
	if len(rec) < cb+4 {
		return nil, nbrs[:0], formatErr("node record of %d bytes", len(rec))
	}
	coords := rec[:cb]
	n := binary.LittleEndian.Uint32(rec[cb:])
	if n > h.MaxDegree {
		return nil, nbrs[:0], formatErr("node has %d neighbors, max degree %d", n, h.MaxDegree)
	}
	body := rec[cb+4:]
	if len(body) < int(n)*4 {
		return nil, nbrs[:0], formatErr("node neighbor list truncated")
	}
	nbrs = nbrs[:0]
	for i := 0; i < int(n); i++ {
		nbrs = append(nbrs, binary.LittleEndian.Uint32(body[i*4:]))
	}
	return coords, nbrs, nil
}

// EncodeNode writes a node record into dst, which must hold MaxNodeLen bytes.
func (h *Header) EncodeNode(dst, coords []byte, nbrs []uint32) {
	cb := copy(dst, coords[:h.CoordBytes()])
	binary.LittleEndian.PutUint32(dst[cb:], uint32(len(nbrs)))
	for i, nb := range nbrs {
		binary.LittleEndian.PutUint32(dst[cb+4+4*i:], nb)
	}
}

// DecodeCoords converts stored full-precision coordinates to float32.
func DecodeCoords(t DataType, src []byte, dst []float32) {
	switch t {
	case Float32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		}
	case Int8:
		for i := range dst {
			dst[i] = float32(int8(src[i]))
		}
	case Uint8:
		for i := range dst {
			dst[i] = float32(src[i])
		}
	}
}

// EncodeCoords converts float32 coordinates to their stored form.
func EncodeCoords(t DataType, src []float32, dst []byte) {
	switch t {
	case Float32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
		}
	case Int8:
		for i, v := range src {
			dst[i] = byte(int8(v))
		}
	case Uint8:
		for i, v := range src {
			dst[i] = byte(v)
		}
	}
}

// DecodeFloat32s reads len(dst) little-endian float32 values.
func DecodeFloat32s(src []byte, dst []float32) {
	DecodeCoords(Float32, src, dst)
}
