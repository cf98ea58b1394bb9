// Package match implements distance computation and threshold decisions
// for face embedding comparison.
package match

import (
	"math"
	"strings"
)

// Metric identifies the distance function used to compare embeddings.
type Metric int

const (
	Cosine Metric = iota
	L2
)

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case L2:
		return "l2"
	default:
		return "unknown"
	}
}

// ParseMetric parses a metric name. Accepts "cosine", "l2" and the
// aliases "euclidean" and "euclidean_l2".
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine":
		return Cosine, nil
	case "l2", "euclidean", "euclidean_l2":
		return L2, nil
	default:
		return 0, ErrUnknownMetric
	}
}

// Decision is the outcome of comparing a probe embedding against a stored one.
type Decision struct {
	Metric     Metric
	Distance   float64
	Threshold  float64
	Accepted   bool
	Confidence float64
}

// CosineDistance computes 1 minus the cosine similarity of two embeddings.
// The result is in [0, 2]; 0 means identical direction. Accumulation runs
// in float64 so the result does not depend on vector length.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Guard against float drift pushing similarity outside [-1, 1].
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}

	return 1 - sim, nil
}

// EuclideanDistance computes the L2 distance between two embeddings.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}

	return math.Sqrt(sum), nil
}

// Distance computes the distance between two embeddings under the given metric.
func Distance(m Metric, a, b []float32) (float64, error) {
	switch m {
	case Cosine:
		return CosineDistance(a, b)
	case L2:
		return EuclideanDistance(a, b)
	default:
		return 0, ErrUnknownMetric
	}
}

// Confidence maps a distance to a score in [0, 1], higher meaning more alike.
// For cosine it is 1 - distance clamped to [0, 1]; for L2 it is 1/(1+distance).
func Confidence(m Metric, distance float64) float64 {
	switch m {
	case Cosine:
		c := 1 - distance
		if c < 0 {
			return 0
		}
		if c > 1 {
			return 1
		}
		return c
	case L2:
		return 1 / (1 + distance)
	default:
		return 0
	}
}

// NormalizeL2 returns a unit-length copy of v. Returns false when v has
// zero magnitude. Embeddings are normalized before indexing so cosine
// search over the index agrees with exact comparison.
func NormalizeL2(v []float32) ([]float32, bool) {
	var norm2 float64
	for _, x := range v {
		norm2 += float64(x) * float64(x)
	}
	if norm2 == 0 {
		return nil, false
	}

	inv := 1 / math.Sqrt(norm2)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, true
}

// Decide compares a probe embedding against a reference and applies the
// threshold. A distance exactly equal to the threshold is accepted.
func Decide(m Metric, probe, reference []float32, threshold float64) (Decision, error) {
	dist, err := Distance(m, probe, reference)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Metric:     m,
		Distance:   dist,
		Threshold:  threshold,
		Accepted:   dist <= threshold,
		Confidence: Confidence(m, dist),
	}, nil
}
