// Package testutil provides deterministic fixtures for tests.
//
// It is intended for use in tests and benchmarks only: a seeded RNG,
// a writer that lays out small disk indexes (graph, PQ table, optional
// reorder region) exactly as the loader expects, and brute-force ground
// truth.
//
//	rng := testutil.NewRNG(4711)
//	vecs := rng.GaussianVectors(1000, 32)
//	fx, err := testutil.NewFixture(testutil.FixtureConfig{Metric: distance.MetricL2}, vecs)
//	store := blobstore.NewMemoryStore()
//	err = fx.Write(ctx, store)
//	truth := testutil.ExactTopK(query, vecs, 10, distance.MetricL2, nil)
package testutil
