// Package vector implements fixed-dimension embedding storage and
// similarity search over pluggable index backends.
package vector

import "math"

// Algorithm names a similarity scoring function.
type Algorithm string

// Supported algorithms
const (
	Cosine    Algorithm = "cosine"
	Euclidean Algorithm = "euclidean"
	Dot       Algorithm = "dot"
	Manhattan Algorithm = "manhattan"
)

// ParseAlgorithm converts a string to an Algorithm, reporting whether the
// string names a known algorithm.
func ParseAlgorithm(s string) (Algorithm, bool) {
	switch Algorithm(s) {
	case Cosine, Euclidean, Dot, Manhattan:
		return Algorithm(s), true
	}
	return "", false
}

// CosineSimilarity returns the cosine of the angle between a and b. Vectors
// of mismatched length or zero norm score 0 rather than erroring, so scoring
// loops never branch on failure.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}

// EuclideanDistance returns the L2 distance between a and b. Mismatched
// lengths yield +Inf: maximally distant, never silently close.
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}

	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// DotProduct returns the inner product of a and b, 0 on mismatched lengths.
func DotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// ManhattanDistance returns the L1 distance between a and b, +Inf on
// mismatched lengths.
func ManhattanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}

	var sum float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// Score computes the (similarity, distance) pair for a query/candidate pair
// under this algorithm. Similarity always sorts descending-is-better;
// distance ascending-is-better. For cosine, distance is 1 - similarity; for
// the metric distances, similarity is 1/(1+distance); for dot, distance is
// the negated product.
func (a Algorithm) Score(query, candidate []float32) (similarity, distance float32) {
	switch a {
	case Euclidean:
		distance = EuclideanDistance(query, candidate)
		if math.IsInf(float64(distance), 1) {
			return 0, distance
		}
		return 1 / (1 + distance), distance
	case Dot:
		similarity = DotProduct(query, candidate)
		return similarity, -similarity
	case Manhattan:
		distance = ManhattanDistance(query, candidate)
		if math.IsInf(float64(distance), 1) {
			return 0, distance
		}
		return 1 / (1 + distance), distance
	default:
		similarity = CosineSimilarity(query, candidate)
		return similarity, 1 - similarity
	}
}
