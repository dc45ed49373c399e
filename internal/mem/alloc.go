package mem

import (
	"unsafe"
)

// SectorAlign is the alignment of buffers returned by Sectors.
const SectorAlign = 512

// Sectors returns a zeroed buffer of size bytes whose first byte sits on a
// SectorAlign boundary. It returns nil for size <= 0.
func Sectors(size int) []byte {
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size+SectorAlign)
	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // alignment needs the address
	off := int((SectorAlign - addr%SectorAlign) % SectorAlign)
	return buf[off : off+size : off+size]
}

// IsAligned reports whether b starts on a SectorAlign boundary.
func IsAligned(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&b[0]))%SectorAlign == 0 //nolint:gosec // alignment needs the address
}
