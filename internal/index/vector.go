package index

import "math"

// NormalizeL2 returns v scaled to unit L2 norm as float64.
// A zero vector is returned unchanged.
func NormalizeL2(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		out[i] = float64(x)
		sum += out[i] * out[i]
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return out
	}
	for i := range out {
		out[i] /= n
	}
	return out
}
