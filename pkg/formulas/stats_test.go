package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightedMean(t *testing.T) {
	assert.InDelta(t, 80.0, WeightedMean([]float64{100, 60}, []float64{0.5, 0.5}), 1e-9)
	// Weights normalize internally
	assert.InDelta(t, 80.0, WeightedMean([]float64{100, 60}, []float64{2, 2}), 1e-9)
	assert.InDelta(t, 90.0, WeightedMean([]float64{100, 60}, []float64{3, 1}), 1e-9)
}

func TestWeightedMean_DegenerateInputs(t *testing.T) {
	assert.Zero(t, WeightedMean(nil, nil))
	assert.Zero(t, WeightedMean([]float64{1, 2}, []float64{1}))
	assert.Zero(t, WeightedMean([]float64{1, 2}, []float64{0, 0}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(5, 0, 10))
	assert.Equal(t, 0.0, Clamp(-3, 0, 10))
	assert.Equal(t, 10.0, Clamp(42, 0, 10))
}

func TestRangePosition(t *testing.T) {
	assert.InDelta(t, 0.5, RangePosition(100, 50, 150), 1e-9)
	assert.Equal(t, 0.0, RangePosition(40, 50, 150))
	assert.Equal(t, 1.0, RangePosition(200, 50, 150))
	// Degenerate range sits in the middle
	assert.Equal(t, 0.5, RangePosition(100, 150, 50))
}
