// Package hash provides the checksum used by every pqflash file format.
//
// Disk-index metadata, the resident PQ file and cache-list artifacts all end
// their integrity-protected region with a little-endian CRC32-Castagnoli:
//
//	buf = hash.AppendCRC32C(buf)
//	ok := hash.VerifyCRC32C(buf)
package hash
