// Package similarity computes word-vector similarities and performs top-k
// nearest-neighbor search over embedding tables.
package similarity

import (
	"fmt"
	"strings"

	"github.com/histtext/lexivec/embedding"
	"github.com/histtext/lexivec/internal/vecmath"
)

// Metric represents the similarity measure used for neighbor search.
type Metric int

const (
	MetricCosine Metric = iota
	MetricDot
	MetricEuclidean
	MetricManhattan
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricDot:
		return "dot"
	case MetricEuclidean:
		return "euclidean"
	case MetricManhattan:
		return "manhattan"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseMetric maps a configuration string to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "":
		return MetricCosine, nil
	case "dot":
		return MetricDot, nil
	case "euclidean":
		return MetricEuclidean, nil
	case "manhattan":
		return MetricManhattan, nil
	default:
		return MetricCosine, fmt.Errorf("unsupported similarity metric: %q", s)
	}
}

// Func computes the similarity of two embeddings of equal dimension.
//
// SAFETY: callers must ensure the dimensions match; the kernels do not
// bounds-check.
type Func func(a, b embedding.Embedding) float32

// Cosine returns the cosine similarity using the precomputed norms.
// Zero-norm operands yield 0.
func Cosine(a, b embedding.Embedding) float32 {
	if a.Norm <= 0 || b.Norm <= 0 {
		return 0
	}
	return vecmath.Dot(a.Vector, b.Vector) / (a.Norm * b.Norm)
}

// DotProduct returns the norm-scaled dot product. It uses the cached norms
// rather than recomputing them, so it coincides with Cosine; the legacy
// recompute variant produced the same value at higher cost.
func DotProduct(a, b embedding.Embedding) float32 {
	return Cosine(a, b)
}

// Euclidean returns 1/(1+d) for the L2 distance d; range (0, 1].
func Euclidean(a, b embedding.Embedding) float32 {
	return 1 / (1 + vecmath.Sqrt(vecmath.SquaredL2(a.Vector, b.Vector)))
}

// Manhattan returns 1/(1+d) for the L1 distance d; range (0, 1].
func Manhattan(a, b embedding.Embedding) float32 {
	return 1 / (1 + vecmath.Manhattan(a.Vector, b.Vector))
}

// Provider returns the similarity function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return Cosine, nil
	case MetricDot:
		return DotProduct, nil
	case MetricEuclidean:
		return Euclidean, nil
	case MetricManhattan:
		return Manhattan, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
