// Package geo provides the spherical-distance and polygon primitives used
// by zone assignment, deduplication, and kernel density scoring.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// WGS84 lon/lat points.
func Haversine(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Offset moves a lon/lat point by the given east/north distances in meters.
// Accurate enough at the few-meter scale used for boundary buffering.
func Offset(lon, lat, eastMeters, northMeters float64) (float64, float64) {
	dLat := northMeters / 111320.0
	dLon := eastMeters / (111320.0 * math.Cos(lat*math.Pi/180))
	return lon + dLon, lat + dLat
}

// RingCentroid returns the area-weighted centroid and signed area of a
// closed ring of [lon, lat] pairs (shoelace formula in coordinate space).
func RingCentroid(ring [][]float64) (cx, cy, area float64) {
	n := len(ring)
	if n < 3 {
		return 0, 0, 0
	}
	var a, sx, sy float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
		a += cross
		sx += (ring[i][0] + ring[j][0]) * cross
		sy += (ring[i][1] + ring[j][1]) * cross
	}
	a /= 2
	if a == 0 {
		// Degenerate ring: fall back to the vertex mean.
		sx, sy = 0, 0
		for _, p := range ring {
			sx += p[0]
			sy += p[1]
		}
		return sx / float64(n), sy / float64(n), 0
	}
	return sx / (6 * a), sy / (6 * a), a
}

// PolygonsCentroid returns the centroid of a set of polygons, each given as
// its outer shell ring, weighted by ring area. Holes are ignored: at
// administrative-zone scale their pull on the centroid is negligible.
func PolygonsCentroid(shells [][][]float64) (lon, lat float64, ok bool) {
	var sumA, sumX, sumY float64
	for _, shell := range shells {
		cx, cy, a := RingCentroid(shell)
		a = math.Abs(a)
		if a == 0 {
			continue
		}
		sumA += a
		sumX += cx * a
		sumY += cy * a
	}
	if sumA == 0 {
		return 0, 0, false
	}
	return sumX / sumA, sumY / sumA, true
}
