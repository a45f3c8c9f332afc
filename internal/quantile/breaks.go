// Package quantile derives k-bucket choropleth breakpoints from a numeric
// distribution, with a short-TTL cache and a content-derived change token
// for conditional fetches.
package quantile

import (
	"math"

	"github.com/rotisserie/eris"
)

// Bucket count bounds accepted from callers.
const (
	MinBuckets = 2
	MaxBuckets = 10
)

// Breaks returns the k-1 quantile breakpoints of an ascending-sorted slice:
// breaks[i-1] = sorted[ceil((i/k)*n) - 1], clamped to [0, n-1]. The result
// is non-decreasing for any valid input, and empty when n = 0.
func Breaks(sorted []float64, k int) ([]float64, error) {
	if k < MinBuckets || k > MaxBuckets {
		return nil, eris.Errorf("quantile: bucket count %d out of range [%d, %d]", k, MinBuckets, MaxBuckets)
	}
	n := len(sorted)
	if n == 0 {
		return []float64{}, nil
	}

	breaks := make([]float64, 0, k-1)
	for i := 1; i < k; i++ {
		idx := int(math.Ceil(float64(i)/float64(k)*float64(n))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx > n-1 {
			idx = n - 1
		}
		breaks = append(breaks, sorted[idx])
	}
	return breaks, nil
}
