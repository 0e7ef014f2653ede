package seedrand

import "math"

// Package seedrand provides the stateless pseudo-random primitives that every
// client and the server share. Given the same seed, every caller derives the
// same value, which is what lets the bid synthesizer replay identical
// timelines on independent machines without any coordination.

// Float maps an integer seed to a float in [0, 1). The mapping is the
// fractional part of a scaled sine, so it is stable across platforms and
// requires no generator state.
func Float(seed int) float64 {
	s := math.Sin(float64(seed)) * 10000
	return s - math.Floor(s)
}

// FloatBetween maps a seed to a float in [lo, hi).
func FloatBetween(seed int, lo, hi float64) float64 {
	return lo + Float(seed)*(hi-lo)
}

// IntBetween maps a seed to an integer in [lo, hi], inclusive on both ends.
func IntBetween(seed, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + int(Float(seed)*float64(hi-lo+1))
}

// HashCode hashes a string to an int32 using the 31x+c rolling scheme.
// Overflow wraps, matching the hash the web clients compute.
func HashCode(s string) int32 {
	var h int32
	for _, c := range s {
		h = 31*h + int32(c)
	}
	return h
}

// CharSum sums the code points of a string. Used to derive the base seed for
// an auction's synthetic timeline from its opaque id.
func CharSum(s string) int {
	sum := 0
	for _, c := range s {
		sum += int(c)
	}
	return sum
}
