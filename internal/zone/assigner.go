// Package zone assigns WGS84 points to canonical zones by point-in-polygon
// testing over an in-memory boundary cache.
package zone

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	geompkg "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/lionmetrics/zonescope/internal/geo"
	"github.com/lionmetrics/zonescope/internal/model"
)

// BufferRadiusMeters is the tolerance disk used on the retry pass, absorbing
// boundary-snapping discrepancies in source data.
const BufferRadiusMeters = 5.0

// Source provides the current zone table for building the boundary cache.
type Source interface {
	ListZones(ctx context.Context) ([]model.Zone, error)
}

// ring is a closed loop of [lon, lat] vertices.
type ring [][]float64

// polygon is one shell ring followed by zero or more hole rings. Even-odd
// containment over all rings handles holes without distinguishing them.
type polygon []ring

type compiledZone struct {
	id       string
	polygons []polygon
	centLon  float64
	centLat  float64
	hasCent  bool
}

// Assigner caches zone boundaries in memory. The cache is read-only during
// a pipeline run; Reload is an explicit, exclusive operation and must not
// run concurrently with active Assign calls (the lock enforces this).
type Assigner struct {
	source Source

	mu    sync.RWMutex
	zones []compiledZone
}

// NewAssigner creates an Assigner with an empty cache. Call Reload before
// assigning points.
func NewAssigner(source Source) *Assigner {
	return &Assigner{source: source}
}

// Reload replaces the boundary cache from the zone table. Zones without a
// boundary are skipped; malformed boundaries are logged and skipped rather
// than failing the whole reload.
func (a *Assigner) Reload(ctx context.Context) error {
	zones, err := a.source.ListZones(ctx)
	if err != nil {
		return eris.Wrap(err, "zone: load boundaries")
	}

	compiled := make([]compiledZone, 0, len(zones))
	skipped := 0
	for _, z := range zones {
		if len(z.Boundary) == 0 {
			continue
		}
		cz, err := compile(z)
		if err != nil {
			zap.L().Warn("zone: skipping malformed boundary",
				zap.String("zone_id", z.ID), zap.Error(err))
			skipped++
			continue
		}
		compiled = append(compiled, cz)
	}

	a.mu.Lock()
	a.zones = compiled
	a.mu.Unlock()

	zap.L().Info("zone: boundary cache reloaded",
		zap.Int("zones", len(compiled)), zap.Int("skipped", skipped))
	return nil
}

// compile decodes a GeoJSON boundary into rings and precomputes the
// centroid used by the scoring engine.
func compile(z model.Zone) (compiledZone, error) {
	var g geompkg.T
	if err := geojson.Unmarshal(z.Boundary, &g); err != nil {
		return compiledZone{}, eris.Wrapf(err, "zone: decode boundary for %s", z.ID)
	}

	var polys []polygon
	switch t := g.(type) {
	case *geompkg.Polygon:
		polys = append(polys, polygonRings(t))
	case *geompkg.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, polygonRings(t.Polygon(i)))
		}
	default:
		return compiledZone{}, eris.Errorf("zone: boundary for %s is %T, want polygon or multi-polygon", z.ID, g)
	}

	cz := compiledZone{id: z.ID, polygons: polys}

	shells := make([][][]float64, 0, len(polys))
	for _, p := range polys {
		if len(p) > 0 {
			shells = append(shells, p[0])
		}
	}
	cz.centLon, cz.centLat, cz.hasCent = geo.PolygonsCentroid(shells)

	return cz, nil
}

func polygonRings(p *geompkg.Polygon) polygon {
	out := make(polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		r := make(ring, 0, len(coords))
		for _, c := range coords {
			r = append(r, []float64{c.X(), c.Y()})
		}
		out = append(out, r)
	}
	return out
}

// Assign maps a WGS84 point to a zone ID. If no boundary contains the point
// it retries with the point expanded to a small buffer disk; the second
// return value is false when the point is outside every boundary either way.
//
// Zones must not overlap in well-formed input; if they do, the first
// containing zone in cache order wins.
func (a *Assigner) Assign(lon, lat float64) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.assignLocked(lon, lat)
}

// AssignBatch assigns many points under one cache read-lock. Result slots
// hold the zone ID or "" when unassigned.
func (a *Assigner) AssignBatch(points [][2]float64) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, len(points))
	for i, p := range points {
		if id, ok := a.assignLocked(p[0], p[1]); ok {
			out[i] = id
		}
	}
	return out
}

func (a *Assigner) assignLocked(lon, lat float64) (string, bool) {
	for _, z := range a.zones {
		if z.contains(lon, lat) {
			return z.id, true
		}
	}

	// Retry with the point expanded into a buffer disk, sampled at eight
	// compass bearings.
	for _, d := range [][2]float64{
		{1, 0}, {-1, 0}, {0, 1}, {0, -1},
		{0.7071, 0.7071}, {0.7071, -0.7071}, {-0.7071, 0.7071}, {-0.7071, -0.7071},
	} {
		bLon, bLat := geo.Offset(lon, lat, d[0]*BufferRadiusMeters, d[1]*BufferRadiusMeters)
		for _, z := range a.zones {
			if z.contains(bLon, bLat) {
				return z.id, true
			}
		}
	}

	return "", false
}

func (z *compiledZone) contains(lon, lat float64) bool {
	for _, p := range z.polygons {
		if p.contains(lon, lat) {
			return true
		}
	}
	return false
}

// contains runs even-odd ray casting over every ring of the polygon. A hit
// inside a hole ring flips parity back to outside.
func (p polygon) contains(lon, lat float64) bool {
	inside := false
	for _, r := range p {
		if ringContains(r, lon, lat) {
			inside = !inside
		}
	}
	return inside
}

// ringContains is the even-odd crossing test against one ring.
func ringContains(r ring, lon, lat float64) bool {
	inside := false
	n := len(r)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := r[i][0], r[i][1]
		xj, yj := r[j][0], r[j][1]
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Centroids returns a zone ID -> centroid map for every cached zone with a
// computable boundary centroid.
func (a *Assigner) Centroids() map[string][2]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string][2]float64, len(a.zones))
	for _, z := range a.zones {
		if z.hasCent {
			out[z.id] = [2]float64{z.centLon, z.centLat}
		}
	}
	return out
}
