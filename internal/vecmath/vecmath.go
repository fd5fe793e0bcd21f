// Package vecmath provides the float32 kernels used by the similarity
// engine and the embedding types.
//
// SAFETY: the pairwise kernels assume len(a) == len(b). They do NOT perform
// bounds checks for performance reasons; callers must ensure lengths match.
package vecmath

import "math"

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}

	return distance
}

// Manhattan calculates the L1 distance between two vectors.
func Manhattan(a, b []float32) float32 {
	var distance float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		distance += d
	}

	return distance
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// Sqrt returns the square root of x as float32.
func Sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return Sqrt(Dot(v, v))
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v is empty or has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / Sqrt(norm2)
	ScaleInPlace(v, inv)
	return true
}
