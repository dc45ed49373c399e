// Package pqflash serves approximate nearest neighbor queries from a
// disk-resident graph index.
//
// The graph and full-precision coordinates live on disk (or in an object
// store) in 4 KiB sectors. Only compressed product-quantization codes stay in
// memory. A query walks the graph with a beam search that ranks candidates by
// PQ distance, reads a few sectors per step and re-ranks the expanded nodes
// with exact distances.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := pqflash.OpenLocal(ctx, "./index", "sift")
//	defer db.Close()
//
//	results, _ := db.Search(query).KNN(10).L(100).Execute(ctx)
//
// Indexes can also be served from S3 or MinIO through the blobstore
// subpackages:
//
//	store := s3.NewStore(s3Client, "my-bucket", "indexes/")
//	db, _ := pqflash.Open(ctx, store, "sift", pqflash.WithBlockCache(256<<20))
//
// # Streaming
//
// Stream yields results roughly best first without fixing k up front:
//
//	for r, err := range db.Search(query).Stream(ctx) {
//	    if err != nil || r.Distance > cutoff {
//	        break
//	    }
//	    process(r)
//	}
//
// # Caching
//
// Hot nodes can be pinned in memory. WithBFSCache caches the graph
// neighborhood of the entry points at open. GenerateCacheList replays sample
// queries in the background and swaps in the most visited nodes without
// blocking concurrent searches.
package pqflash
