package facematch

import "math"

// MaxDistance is returned for descriptor pairs that cannot be compared.
// No threshold accepts it.
var MaxDistance = math.Inf(1)

// EuclideanDistance computes the L2 distance between two descriptors.
// Absent descriptors and descriptors of different length yield MaxDistance.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return MaxDistance
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}

	d := math.Sqrt(sum)
	if math.IsNaN(d) {
		return MaxDistance
	}
	return d
}

// ValidDescriptor reports whether d has exactly dim finite components.
func ValidDescriptor(d []float32, dim int) bool {
	if len(d) == 0 || len(d) != dim {
		return false
	}
	for _, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
