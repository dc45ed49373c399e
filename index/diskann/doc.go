// Package diskann serves queries against a prebuilt disk-resident graph index.
//
// The index keeps a compressed navigation structure in memory and reads
// full-precision node records from a blob on demand.
//
// # Architecture
//
//  1. Resident data (RAM): PQ codebook and one PQ code per node
//     - O(chunks) approximate distances through a per-query lookup table
//     - Optional base norms (cosine) and disk-PQ codebook
//
//  2. Node cache (RAM): hot node records copied from disk
//     - Built from BFS levels or from nodes visited by sample queries
//     - Rebuilt aside and swapped in atomically
//
//  3. Disk blob: sector-aligned node records (coordinates and neighbor ids)
//     and an optional region of full-precision reorder vectors
//     - Read in batches of at most beam-width sectors per step
//
// # Search
//
// Batch search keeps a search list of width LSearch ordered by PQ distance,
// expands up to BeamWidth unexpanded entries per step, and ranks every
// expanded node by exact distance. Range search widens the list until the
// radius is covered. An Iterator streams results incrementally, holding its
// traversal state between calls.
//
// # Files
//
// An index with prefix p consists of two blobs:
//   - p_disk.index: metadata sectors followed by the node region
//   - p_pq.bin: PQ table, codes, optional norms and disk-PQ table
//
// A cache list (ids to preload) can be persisted with WriteCacheList.
package diskann
