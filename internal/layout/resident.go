package layout

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/pqflash/internal/hash"
	"github.com/hupe1980/pqflash/internal/pq"
)

const (
	ResidentMagic   = 0x42545150 // "PQTB"
	ResidentVersion = 1

	residentHasNorms  = 1 << 0
	residentHasDiskPQ = 1 << 1
)

// Resident is the in-memory part of an index: PQ codebook, one code per
// point, optional base norms (cosine) and an optional disk-PQ codebook.
type Resident struct {
	NumPoints uint64
	Table     *pq.Table
	Codes     []byte
	BaseNorms []float32
	DiskTable *pq.Table
}

// Encode serializes r with a trailing CRC32C.
func (r *Resident) Encode() []byte {
	le := binary.LittleEndian
	var flags uint32
	if r.BaseNorms != nil {
		flags |= residentHasNorms
	}
	if r.DiskTable != nil {
		flags |= residentHasDiskPQ
	}

	buf := le.AppendUint32(nil, ResidentMagic)
	buf = le.AppendUint32(buf, ResidentVersion)
	buf = le.AppendUint64(buf, r.NumPoints)
	buf = le.AppendUint32(buf, flags)
	buf = appendTable(buf, r.Table)
	buf = append(buf, r.Codes...)
	if r.BaseNorms != nil {
		buf = appendFloats(buf, r.BaseNorms)
	}
	if r.DiskTable != nil {
		buf = appendTable(buf, r.DiskTable)
	}
	return hash.AppendCRC32C(buf)
}

// DecodeResident parses a resident blob.
func DecodeResident(buf []byte) (*Resident, error) {
	if len(buf) < 24 {
		return nil, formatErr("resident file truncated")
	}
	le := binary.LittleEndian
	if m := le.Uint32(buf); m != ResidentMagic {
		return nil, formatErr("bad resident magic %#x", m)
	}
	if v := le.Uint32(buf[4:]); v != ResidentVersion {
		return nil, formatErr("unsupported resident version %d", v)
	}
	if !hash.VerifyCRC32C(buf) {
		return nil, formatErr("resident checksum mismatch")
	}

	d := decoder{buf: buf[:len(buf)-4], off: 8}
	r := &Resident{NumPoints: d.u64()}
	flags := d.u32()

	var err error
	if r.Table, err = d.table(); err != nil {
		return nil, err
	}
	r.Codes = d.bytes(r.NumPoints * uint64(r.Table.NumChunks()))
	if flags&residentHasNorms != 0 {
		r.BaseNorms = d.floats(r.NumPoints)
	}
	if flags&residentHasDiskPQ != 0 {
		if r.DiskTable, err = d.table(); err != nil {
			return nil, err
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(d.buf) {
		return nil, formatErr("resident file has %d trailing bytes", len(d.buf)-d.off)
	}
	return r, nil
}

func appendTable(buf []byte, t *pq.Table) []byte {
	le := binary.LittleEndian
	buf = le.AppendUint32(buf, uint32(t.Dim()))
	buf = le.AppendUint32(buf, uint32(t.NumChunks()))
	buf = appendFloats(buf, t.Pivots())
	buf = appendFloats(buf, t.Centroid())
	for _, o := range t.Offsets() {
		buf = le.AppendUint32(buf, o)
	}
	return buf
}

func appendFloats(buf []byte, v []float32) []byte {
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

// decoder reads sequential little-endian fields and remembers the first error.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n uint64) bool {
	if d.err != nil {
		return false
	}
	if n > uint64(len(d.buf)-d.off) {
		d.err = formatErr("resident file truncated at offset %d", d.off)
		return false
	}
	return true
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) bytes(n uint64) []byte {
	if !d.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:])
	d.off += int(n)
	return out
}

func (d *decoder) floats(n uint64) []float32 {
	if n > math.MaxInt32 || !d.need(4*n) {
		if d.err == nil {
			d.err = formatErr("float run of %d values too large", n)
		}
		return nil
	}
	out := make([]float32, n)
	DecodeFloat32s(d.buf[d.off:], out)
	d.off += int(4 * n)
	return out
}

func (d *decoder) table() (*pq.Table, error) {
	dim := uint64(d.u32())
	chunks := uint64(d.u32())
	pivots := d.floats(pq.NumCentroids * dim)
	centroid := d.floats(dim)
	offsets := make([]uint32, 0, min(chunks+1, 1<<16))
	for i := uint64(0); i <= chunks && d.err == nil; i++ {
		offsets = append(offsets, d.u32())
	}
	if d.err != nil {
		return nil, d.err
	}
	t, err := pq.New(int(dim), pivots, centroid, offsets)
	if err != nil {
		return nil, formatErr("%v", err)
	}
	return t, nil
}
