// Package distance provides the vector distance kernels used by pqflash.
//
// Kernels are backed by github.com/viterin/vek/vek32, which dispatches to
// AVX2/FMA code paths when the CPU supports them.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (default)
//   - MetricInnerProduct: inner product on augmented unit vectors
//   - MetricCosine: cosine similarity using stored base norms
//
// # Usage
//
//	d := distance.SquaredL2(a, b)
//	ip := distance.Dot(a, b)
//	ok := distance.NormalizeL2InPlace(q)
package distance
