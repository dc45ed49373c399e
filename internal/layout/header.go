package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/pqflash/distance"
	"github.com/hupe1980/pqflash/internal/hash"
)

const (
	// SectorLen is the addressable unit of a disk index blob.
	SectorLen = 4096
	// MaxGraphDegree bounds the neighbor count of any node.
	MaxGraphDegree = 512

	HeaderMagic   = 0x4C465150 // "PQFL"
	HeaderVersion = 1

	// FixedHeaderSize is the size of the fixed part preceding medoids and centroids.
	FixedHeaderSize = 96
)

// ErrInvalidFormat is wrapped by every structural error.
var ErrInvalidFormat = errors.New("invalid index format")

func formatErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFormat, fmt.Sprintf(format, args...))
}

// DataType is the element type of stored full-precision coordinates.
type DataType uint8

const (
	Float32 DataType = iota
	Int8
	Uint8
)

// Size returns the element size in bytes.
func (t DataType) Size() int {
	if t == Float32 {
		return 4
	}
	return 1
}

func (t DataType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	default:
		return fmt.Sprintf("DataType(%d)", t)
	}
}

// Header is the metadata region of a disk index blob.
type Header struct {
	NumPoints uint64
	// Dim is the stored coordinate dimensionality. Inner-product indexes store
	// augmented vectors, so Dim is the query dimensionality plus one.
	Dim      uint32
	DataType DataType
	Metric   distance.Metric
	// DiskPQChunks > 0 means node coordinates are disk-PQ codes.
	DiskPQChunks uint32
	MaxDegree    uint32

	MaxNodeLen uint64
	// NodesPerSector is 0 for long nodes.
	NodesPerSector uint64

	NumFrozen      uint32
	FrozenLocation uint64

	MetadataSectors uint32

	ReorderStartSector   uint64
	ReorderDim           uint32
	ReorderVecsPerSector uint32

	MaxBaseNorm float32

	Medoids []uint32
	// Centroids holds one CentroidDim vector per medoid, or nothing.
	Centroids   []float32
	CentroidDim uint32
}

// EncodedLen returns the byte length of the encoded header including the checksum.
func (h *Header) EncodedLen() int {
	return FixedHeaderSize + 4*len(h.Medoids) + 4*len(h.Centroids) + 4
}

// Encode serializes the header. The caller pads it to MetadataSectors sectors.
func (h *Header) Encode() []byte {
	buf := make([]byte, FixedHeaderSize, h.EncodedLen())
	le := binary.LittleEndian
	le.PutUint32(buf[0:], HeaderMagic)
	le.PutUint32(buf[4:], HeaderVersion)
	le.PutUint64(buf[8:], h.NumPoints)
	le.PutUint32(buf[16:], h.Dim)
	buf[20] = byte(h.DataType)
	buf[21] = byte(h.Metric)
	le.PutUint32(buf[24:], h.DiskPQChunks)
	le.PutUint32(buf[28:], h.MaxDegree)
	le.PutUint64(buf[32:], h.MaxNodeLen)
	le.PutUint64(buf[40:], h.NodesPerSector)
	le.PutUint32(buf[48:], h.NumFrozen)
	le.PutUint32(buf[52:], h.MetadataSectors)
	le.PutUint64(buf[56:], h.FrozenLocation)
	le.PutUint64(buf[64:], h.ReorderStartSector)
	le.PutUint32(buf[72:], h.ReorderDim)
	le.PutUint32(buf[76:], h.ReorderVecsPerSector)
	le.PutUint32(buf[80:], math.Float32bits(h.MaxBaseNorm))
	le.PutUint32(buf[84:], uint32(len(h.Medoids)))
	le.PutUint32(buf[88:], h.CentroidDim)

	for _, m := range h.Medoids {
		buf = le.AppendUint32(buf, m)
	}
	for _, c := range h.Centroids {
		buf = le.AppendUint32(buf, math.Float32bits(c))
	}
	return hash.AppendCRC32C(buf)
}

// PeekMetadataSectors returns the metadata sector count recorded in the
// first sector, so callers know how much to read before DecodeHeader.
func PeekMetadataSectors(sector0 []byte) (uint32, error) {
	if len(sector0) < FixedHeaderSize {
		return 0, formatErr("header truncated: %d bytes", len(sector0))
	}
	if binary.LittleEndian.Uint32(sector0[0:]) != HeaderMagic {
		return 0, formatErr("bad magic %#x", binary.LittleEndian.Uint32(sector0[0:]))
	}
	n := binary.LittleEndian.Uint32(sector0[52:])
	if n == 0 {
		return 0, formatErr("zero metadata sectors")
	}
	return n, nil
}

// DecodeHeader parses the metadata region and validates its checksum.
// Geometry is checked separately by Validate.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < FixedHeaderSize {
		return nil, formatErr("header truncated: %d bytes", len(buf))
	}
	le := binary.LittleEndian
	if m := le.Uint32(buf[0:]); m != HeaderMagic {
		return nil, formatErr("bad magic %#x", m)
	}
	if v := le.Uint32(buf[4:]); v != HeaderVersion {
		return nil, formatErr("unsupported version %d", v)
	}

	h := &Header{
		NumPoints:            le.Uint64(buf[8:]),
		Dim:                  le.Uint32(buf[16:]),
		DataType:             DataType(buf[20]),
		Metric:               distance.Metric(buf[21]),
		DiskPQChunks:         le.Uint32(buf[24:]),
		MaxDegree:            le.Uint32(buf[28:]),
		MaxNodeLen:           le.Uint64(buf[32:]),
		NodesPerSector:       le.Uint64(buf[40:]),
		NumFrozen:            le.Uint32(buf[48:]),
		MetadataSectors:      le.Uint32(buf[52:]),
		FrozenLocation:       le.Uint64(buf[56:]),
		ReorderStartSector:   le.Uint64(buf[64:]),
		ReorderDim:           le.Uint32(buf[72:]),
		ReorderVecsPerSector: le.Uint32(buf[76:]),
		MaxBaseNorm:          math.Float32frombits(le.Uint32(buf[80:])),
		CentroidDim:          le.Uint32(buf[88:]),
	}
	numMedoids := uint64(le.Uint32(buf[84:]))
	numCentroids := uint64(0)
	if h.CentroidDim > 0 {
		numCentroids = numMedoids * uint64(h.CentroidDim)
	}

	end := uint64(FixedHeaderSize) + 4*numMedoids + 4*numCentroids + 4
	if end > uint64(len(buf)) {
		return nil, formatErr("header needs %d bytes, have %d", end, len(buf))
	}
	if !hash.VerifyCRC32C(buf[:end]) {
		return nil, formatErr("header checksum mismatch")
	}

	off := FixedHeaderSize
	h.Medoids = make([]uint32, numMedoids)
	for i := range h.Medoids {
		h.Medoids[i] = le.Uint32(buf[off:])
		off += 4
	}
	if numCentroids > 0 {
		h.Centroids = make([]float32, numCentroids)
		for i := range h.Centroids {
			h.Centroids[i] = math.Float32frombits(le.Uint32(buf[off:]))
			off += 4
		}
	}
	return h, nil
}
