// Package scoring computes per-zone demand, supply, and accessibility via
// Gaussian kernel density estimation, normalizes them robustly, and derives
// a composite opportunity score with a percentile rank.
package scoring

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// madScale rescales the median absolute deviation to be consistent with the
// standard deviation under a normal distribution.
const madScale = 1.4826

// Median returns the median of values. Panics are avoided by contract: the
// caller guarantees len(values) > 0.
func Median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MAD returns the median absolute deviation around the given median.
func MAD(values []float64, median float64) float64 {
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - median)
	}
	return Median(devs)
}

// RobustZScores normalizes values with median/MAD instead of mean/stddev,
// so an outlier zone cannot compress the scale for all others.
//
// When the MAD is zero (half or more of the zones share one value) every
// z-score for the component is zero rather than NaN: the component simply
// carries no signal that run. An empty input is an error, not a default.
func RobustZScores(values []float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, eris.New("scoring: no values to normalize")
	}

	med := Median(values)
	mad := MAD(values, med)

	out := make([]float64, len(values))
	if mad == 0 {
		return out, nil
	}

	scale := mad * madScale
	for i, v := range values {
		out[i] = (v - med) / scale
	}
	return out, nil
}
