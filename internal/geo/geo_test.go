package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine_Zero(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(103.8, 1.35, 103.8, 1.35))
}

func TestHaversine_KnownDistance(t *testing.T) {
	// One degree of longitude at the equator is ~111.19 km on a sphere.
	d := Haversine(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 200)
}

func TestHaversine_Symmetric(t *testing.T) {
	a := Haversine(103.8198, 1.3521, 103.8500, 1.2900)
	b := Haversine(103.8500, 1.2900, 103.8198, 1.3521)
	assert.InDelta(t, a, b, 1e-9)
}

func TestOffset_RoundTripDistance(t *testing.T) {
	lon, lat := Offset(103.8198, 1.3521, 30, 0)
	assert.InDelta(t, 30, Haversine(103.8198, 1.3521, lon, lat), 0.5)

	lon, lat = Offset(103.8198, 1.3521, 0, -5)
	assert.InDelta(t, 5, Haversine(103.8198, 1.3521, lon, lat), 0.1)
}

func TestRingCentroid_Square(t *testing.T) {
	ring := [][]float64{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}
	cx, cy, area := RingCentroid(ring)
	assert.InDelta(t, 1.0, cx, 1e-9)
	assert.InDelta(t, 1.0, cy, 1e-9)
	assert.InDelta(t, 4.0, area, 1e-9)
}

func TestRingCentroid_ZeroAreaFallsBackToVertexMean(t *testing.T) {
	// A self-intersecting bowtie has zero net area but nonzero cross terms
	// in the shoelace loop; the fallback must come out at the plain vertex
	// mean, not the contaminated accumulators.
	ring := [][]float64{{0, 0}, {2, 0}, {0, 2}, {2, 2}}
	cx, cy, area := RingCentroid(ring)
	assert.Zero(t, area)
	assert.InDelta(t, 1.0, cx, 1e-9)
	assert.InDelta(t, 1.0, cy, 1e-9)
}

func TestPolygonsCentroid_WeightsByArea(t *testing.T) {
	small := [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	big := [][]float64{{10, 10}, {13, 10}, {13, 13}, {10, 13}, {10, 10}}
	lon, lat, ok := PolygonsCentroid([][][]float64{small, big})
	assert.True(t, ok)
	// Big square has 9x the area, so the centroid sits close to (11.5, 11.5).
	assert.InDelta(t, (0.5+11.5*9)/10, lon, 1e-9)
	assert.InDelta(t, (0.5+11.5*9)/10, lat, 1e-9)
}

func TestPolygonsCentroid_Degenerate(t *testing.T) {
	_, _, ok := PolygonsCentroid(nil)
	assert.False(t, ok)
}
