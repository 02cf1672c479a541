package match

import "math"

// EuclideanDistance computes the L2 distance between two face embeddings.
// Returns +Inf for vectors of different length or empty input.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
