// Package layout defines the on-disk formats of a pqflash index.
//
// A disk index blob is a sequence of SectorLen-byte sectors. The first
// MetadataSectors sectors hold the Header; node records follow. A node
// record is its coordinate bytes, a uint32 neighbor count and the neighbor
// ids. Nodes that fit in a sector are packed NodesPerSector to a sector;
// larger ("long") nodes span SectorsPerNode consecutive sectors. An optional
// reorder region after the nodes holds full-precision float32 vectors,
// ReorderVecsPerSector to a sector.
//
// The resident blob holds the PQ codebook, one code per point, optional base
// norms and an optional codebook for disk-PQ coordinates.
//
// All integers are little-endian. Every structural violation is reported as
// an error wrapping ErrInvalidFormat.
package layout
