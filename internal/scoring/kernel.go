package scoring

import "math"

// Gaussian is the distance-decay kernel: exp(-0.5 * (d/bandwidth)^2).
// Distance and bandwidth are in meters. A non-positive bandwidth
// contributes nothing rather than dividing by zero.
func Gaussian(distanceMeters, bandwidthMeters float64) float64 {
	if bandwidthMeters <= 0 {
		return 0
	}
	r := distanceMeters / bandwidthMeters
	return math.Exp(-0.5 * r * r)
}
