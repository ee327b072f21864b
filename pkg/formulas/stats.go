package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// WeightedMean calculates the weighted mean of values. Weights need not sum
// to 1; they are normalized internally. Zero total weight returns 0.
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0
	}
	return stat.Mean(values, weights)
}

// Clamp bounds a value to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// RangePosition returns where value sits within [low, high] as a fraction
// in [0,1]. A degenerate range returns 0.5.
func RangePosition(value, low, high float64) float64 {
	if high <= low {
		return 0.5
	}
	return Clamp((value-low)/(high-low), 0, 1)
}
