// Package mem allocates sector-aligned read buffers.
//
// Buffers handed to the sector reader start on a SectorAlign boundary so
// that the same memory can back unbuffered (O_DIRECT style) reads.
package mem
