// Package cache holds the in-memory caches of a pqflash index.
//
// # Node Cache
//
// NodeCache maps hot node ids to copies of their neighbor lists and stored
// coordinates. A Snapshot is immutable once published: rebuilds fill a new
// Snapshot aside and publish it with Swap under the write lock, so queries
// holding the previous snapshot keep a consistent view.
//
// # Visit Tracker
//
// VisitTracker keeps a per-node atomic visit counter plus a bounded
// recency LRU (hashicorp/golang-lru/v2). The sampled cache builder ranks
// nodes by count, then recency.
//
// # Block Caches
//
// BlockCache caches fixed-size blob blocks for remote stores:
//   - LRUBlockCache: byte-bounded LRU, memory reserved from a resource.Controller
//   - RistrettoBlockCache: TinyLFU admission (dgraph-io/ristretto)
package cache
