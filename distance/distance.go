package distance

import (
	"fmt"
	"strings"

	"github.com/viterin/vek/vek32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	d := vek32.Distance(a, b)
	return d * d
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Norm(v)
}

// NormalizeL2InPlace L2-normalizes v in place and returns the original norm.
// Returns 0 (and leaves v untouched) if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) float32 {
	n := Norm(v)
	if n == 0 {
		return 0
	}
	vek32.MulNumber_Inplace(v, 1/n)
	return n
}

// Metric represents the distance metric used for vector comparison.
type Metric uint8

const (
	MetricL2 Metric = iota
	MetricInnerProduct
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricInnerProduct:
		return "IP"
	case MetricCosine:
		return "COSINE"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m <= MetricCosine
}

// HigherIsBetter reports whether reported scores for m are similarities.
func (m Metric) HigherIsBetter() bool {
	return m == MetricInnerProduct || m == MetricCosine
}

// ParseMetric parses a metric name such as "L2", "IP" or "COSINE" (case-insensitive).
func ParseMetric(s string) (Metric, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L2", "EUCLIDEAN":
		return MetricL2, nil
	case "IP", "INNER_PRODUCT", "DOT":
		return MetricInnerProduct, nil
	case "COSINE":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}
