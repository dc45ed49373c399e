// Package blobstore provides the storage abstraction index files are read from.
//
// A Store opens immutable blobs by name; a Blob serves context-aware random
// reads. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, pread or mmap
//   - MemoryStore: in-memory, for tests and small fixtures
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO / S3-compatible object stores
//
// Remote blobs are usually wrapped with NewCachingStore so repeated sector
// reads are served from a block cache.
package blobstore
