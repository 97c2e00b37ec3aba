package utils

import (
	"math"
	"math/rand"
)

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax] using the given source.
func SampleNIntegersUniform(n int, vMin, vMax float64, rng *rand.Rand) []int {
	lo, hi := int(math.Round(vMin)), int(math.Round(vMax))
	out := make([]int, n)
	for i := range out {
		out[i] = SampleRandomIntRange(lo, hi, rng)
	}
	return out
}

// SampleNIntegersNormal samples n integers from a normal distribution centered in the middle of
// [vMin, vMax] with a standard deviation of a fifth of the range, clipped to the range.
func SampleNIntegersNormal(n int, vMin, vMax float64, rng *rand.Rand) []int {
	mean := (vMin + vMax) / 2
	std := (vMax - vMin) / 5
	out := make([]int, n)
	for i := range out {
		v := rng.NormFloat64()*std + mean
		out[i] = int(math.Round(ClampF64(v, vMin, vMax)))
	}
	return out
}

// SampleNRegularlySpaced returns n integers regularly spaced in [vMin, vMax].
func SampleNRegularlySpaced(n int, vMin, vMax float64) []int {
	out := make([]int, n)
	if n == 1 {
		out[0] = int(math.Round(vMin))
		return out
	}
	step := (vMax - vMin) / float64(n-1)
	for i := range out {
		out[i] = int(math.Round(vMin + float64(i)*step))
	}
	return out
}

// SampleRandomIntRange samples a random integer within a range given by [min, max]
// using the given rand.Rand.
func SampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}
