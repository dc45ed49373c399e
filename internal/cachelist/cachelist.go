// Package cachelist encodes the cache-list artifact: an ordered list of node
// ids to preload into the node cache.
//
// Format (little-endian):
//
//	magic "PQCL" | version u32 | compression u8 | 3 pad | count u32 |
//	payload len u32 | payload | crc32c u32
//
// The payload is count uint32 ids, optionally LZ4 or ZSTD block compressed.
// An encoder falls back to no compression when it does not help.
package cachelist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/pqflash/internal/hash"
)

const (
	Magic   = 0x4C435150 // "PQCL"
	Version = 1

	headerSize = 20
)

// ErrCorrupt is returned for undecodable artifacts.
var ErrCorrupt = errors.New("corrupt cache list")

// Compression selects the payload codec.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

var (
	zstdEncoders = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	}}
	zstdDecoders = sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	}}
)

// Encode serializes ids.
func Encode(ids []uint32, c Compression) ([]byte, error) {
	raw := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(raw[4*i:], id)
	}

	payload, err := compress(raw, c)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || len(payload) >= len(raw) {
		payload, c = raw, CompressionNone
	}

	buf := make([]byte, headerSize, headerSize+len(payload)+4)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], Magic)
	le.PutUint32(buf[4:], Version)
	buf[8] = byte(c)
	le.PutUint32(buf[12:], uint32(len(ids)))
	le.PutUint32(buf[16:], uint32(len(payload)))
	buf = append(buf, payload...)
	return hash.AppendCRC32C(buf), nil
}

// Decode parses an artifact produced by Encode.
func Decode(buf []byte) ([]uint32, error) {
	if len(buf) < headerSize+4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(buf))
	}
	le := binary.LittleEndian
	if le.Uint32(buf[0:]) != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := le.Uint32(buf[4:]); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	if !hash.VerifyCRC32C(buf) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	c := Compression(buf[8])
	count := int(le.Uint32(buf[12:]))
	plen := int(le.Uint32(buf[16:]))
	if headerSize+plen+4 != len(buf) {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorrupt, plen)
	}

	raw, err := decompress(buf[headerSize:headerSize+plen], c, 4*count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(raw) != 4*count {
		return nil, fmt.Errorf("%w: %d payload bytes for %d ids", ErrCorrupt, len(raw), count)
	}

	ids := make([]uint32, count)
	for i := range ids {
		ids[i] = le.Uint32(raw[4*i:])
	}
	return ids, nil
}

func compress(raw []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	case CompressionZSTD:
		enc := zstdEncoders.Get().(*zstd.Encoder)
		defer zstdEncoders.Put(enc)
		return enc.EncodeAll(raw, nil), nil
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}

func decompress(payload []byte, c Compression, rawLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionLZ4:
		dst := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	case CompressionZSTD:
		dec := zstdDecoders.Get().(*zstd.Decoder)
		defer zstdDecoders.Put(dec)
		return dec.DecodeAll(payload, make([]byte, 0, rawLen))
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}
