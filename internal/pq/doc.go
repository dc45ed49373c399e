// Package pq implements product-quantization distance approximation.
//
// A Table holds the global centroid and, per chunk, 256 sub-vector pivots.
// For a query, Populate fills a numChunks×256 distance table once; every
// compressed node distance is then a sum of numChunks lookups:
//
//	t.Populate(query, dists)
//	pq.Lookup(dists, codes, t.NumChunks(), out)
//
// Distances are squared L2 on the (possibly transformed) vectors the codes
// were built from.
package pq
