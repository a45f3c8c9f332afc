package ingest

import (
	"strings"
	"time"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	geompkg "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/lionmetrics/zonescope/internal/crs"
	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/namenorm"
)

// fromShapefile loads zone boundaries from a local .shp file. Shapefile
// exports are often in the projected CRS, so every vertex goes through
// detection and conversion.
func (d *Zones) fromShapefile(path string) ([]model.Zone, *Result, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	attr := func(names []string) string {
		for _, n := range names {
			if idx, ok := fieldIdx[strings.ToLower(n)]; ok {
				v := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
				if v != "" {
					return v
				}
			}
		}
		return ""
	}

	res := NewResult("local")
	now := time.Now().UTC()
	var zones []model.Zone

	for reader.Next() {
		res.Fetched++
		_, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil || len(poly.Points) == 0 {
			res.Invalid++
			continue
		}

		rawName := attr(zoneNameFields)
		if rawName == "" {
			res.Invalid++
			continue
		}
		name, ok := namenorm.Normalize(rawName)
		if !ok {
			res.Invalid++
			continue
		}

		id := attr(zoneIDFields)
		if id == "" {
			id = name
		}
		id = strings.ToUpper(id)

		region := model.RegionUnknown
		if raw := attr(zoneRegionFields); raw != "" {
			region = model.ParseRegion(raw)
		}

		mp := shpPolygonToMultiPolygon(poly, res)
		if mp == nil {
			res.Invalid++
			continue
		}
		boundary, err := geojson.Marshal(mp)
		if err != nil {
			zap.L().Warn("ingest: dropping shapefile zone with unencodable boundary",
				zap.String("zone", name), zap.Error(err))
			res.Invalid++
			continue
		}

		zones = append(zones, model.Zone{
			ID: id, Name: name, Region: region, Boundary: boundary,
			CreatedAt: now, UpdatedAt: now,
		})
		res.Matched++
	}

	return zones, res, nil
}

// shpPolygonToMultiPolygon converts a shapefile polygon to a go-geom
// MultiPolygon, reprojecting vertices to WGS84 as needed. Shapefile parts
// carry shells and holes in one flat list, distinguished by winding
// (shells clockwise, holes counter-clockwise); holes are attached to the
// enclosing shell's polygon so downstream containment sees ring parity.
func shpPolygonToMultiPolygon(p *shp.Polygon, res *Result) geompkg.T {
	if p.NumParts == 0 {
		return nil
	}

	var shells, holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			lon, lat, system := crs.ToWGS84(p.Points[j].X, p.Points[j].Y)
			if j == start {
				res.CountCRS(string(system))
			}
			flat = append(flat, lon, lat)
		}

		switch area := flatRingArea(flat); {
		case area == 0:
			zap.L().Debug("ingest: skipping degenerate shapefile ring", zap.Int32("part", i))
		case area < 0:
			shells = append(shells, flat)
		default:
			holes = append(holes, flat)
		}
	}

	// Some producers wind everything counter-clockwise; with no clockwise
	// ring present there are no holes to distinguish.
	if len(shells) == 0 {
		shells, holes = holes, nil
	}

	polys := make([]*geompkg.Polygon, len(shells))
	for i, flat := range shells {
		poly := geompkg.NewPolygon(geompkg.XY)
		if err := poly.Push(geompkg.NewLinearRingFlat(geompkg.XY, flat)); err != nil {
			zap.L().Debug("ingest: skipping malformed shapefile shell", zap.Error(err))
			continue
		}
		polys[i] = poly
	}

	for _, flat := range holes {
		attached := false
		for i, shell := range shells {
			if polys[i] == nil || !flatRingContains(shell, flat[0], flat[1]) {
				continue
			}
			if err := polys[i].Push(geompkg.NewLinearRingFlat(geompkg.XY, flat)); err != nil {
				zap.L().Debug("ingest: skipping malformed shapefile hole", zap.Error(err))
			}
			attached = true
			break
		}
		if !attached {
			zap.L().Debug("ingest: dropping shapefile hole outside every shell")
		}
	}

	mp := geompkg.NewMultiPolygon(geompkg.XY).SetSRID(4326)
	for _, poly := range polys {
		if poly == nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("ingest: skipping malformed shapefile part", zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// flatRingArea is the shoelace signed area of an interleaved lon/lat ring;
// counter-clockwise rings come out positive.
func flatRingArea(flat []float64) float64 {
	n := len(flat) / 2
	if n < 3 {
		return 0
	}
	var a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return a / 2
}

// flatRingContains is the even-odd crossing test against an interleaved ring.
func flatRingContains(flat []float64, lon, lat float64) bool {
	n := len(flat) / 2
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[2*i], flat[2*i+1]
		xj, yj := flat[2*j], flat[2*j+1]
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
