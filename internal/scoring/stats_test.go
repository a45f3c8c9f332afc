package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{1, 2, 3, 4}))
	assert.Equal(t, 7.0, Median([]float64{7}))
}

func TestMAD(t *testing.T) {
	vals := []float64{1, 1, 2, 2, 4, 6, 9}
	med := Median(vals) // 2
	assert.Equal(t, 1.0, MAD(vals, med))
}

func TestRobustZScores_Basic(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 100}
	z, err := RobustZScores(vals)
	require.NoError(t, err)

	// median = 3, MAD = 1: z = (v - 3) / 1.4826
	assert.InDelta(t, (1.0-3.0)/1.4826, z[0], 1e-9)
	assert.InDelta(t, 0, z[2], 1e-9)
	// The outlier gets a large score but does not distort the others.
	assert.InDelta(t, 97.0/1.4826, z[4], 1e-6)
}

func TestRobustZScores_ZeroMADZeroFills(t *testing.T) {
	z, err := RobustZScores([]float64{5, 5, 5, 5, 9})
	require.NoError(t, err)
	for _, v := range z {
		assert.False(t, math.IsNaN(v), "zero MAD must not produce NaN")
		assert.Equal(t, 0.0, v)
	}
}

func TestRobustZScores_EmptyErrors(t *testing.T) {
	_, err := RobustZScores(nil)
	assert.Error(t, err)
}

func TestGaussian(t *testing.T) {
	assert.Equal(t, 1.0, Gaussian(0, 500))
	assert.InDelta(t, math.Exp(-0.5), Gaussian(500, 500), 1e-12)
	assert.InDelta(t, math.Exp(-2), Gaussian(1000, 500), 1e-12)
	assert.Equal(t, 0.0, Gaussian(100, 0), "non-positive bandwidth contributes nothing")
}

func TestGaussian_Monotonic(t *testing.T) {
	prev := Gaussian(0, 800)
	for d := 100.0; d <= 3000; d += 100 {
		cur := Gaussian(d, 800)
		assert.Less(t, cur, prev)
		prev = cur
	}
}
