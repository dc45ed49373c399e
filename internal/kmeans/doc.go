// Package kmeans trains product-quantization codebooks with Lloyd's
// algorithm.
//
// Callers cluster every chunk of the vector space independently into
// pq.NumCentroids centers. The fixture writer uses it to produce realistic
// pivot tables; the search path never trains.
package kmeans
