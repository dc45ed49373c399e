package hash

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
)

// castagnoli is computed once; crc32 picks SSE4.2 / ARM CRC paths when available.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// NewCRC32C returns a streaming CRC32-Castagnoli hash.
func NewCRC32C() hash.Hash32 {
	return crc32.New(castagnoli)
}

// AppendCRC32C appends the little-endian checksum of data to data.
func AppendCRC32C(data []byte) []byte {
	return binary.LittleEndian.AppendUint32(data, CRC32C(data))
}

// VerifyCRC32C reports whether the trailing 4 bytes of buf hold the checksum
// of everything before them.
func VerifyCRC32C(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	body := buf[:len(buf)-4]
	return binary.LittleEndian.Uint32(buf[len(buf)-4:]) == CRC32C(body)
}
