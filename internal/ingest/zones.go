package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	geompkg "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/namenorm"
)

// Zones ingests the canonical zone boundaries. The remote source is a
// GeoJSON FeatureCollection; a local .shp fallback is also accepted. After
// a successful upsert the assigner's boundary cache is reloaded so point
// datasets in the same run see the fresh boundaries.
type Zones struct {
	Src Source
}

func (d *Zones) Name() string        { return "zones" }
func (d *Zones) Kind() Kind          { return KindArea }
func (d *Zones) SourceLabel() string { return d.Src.Label() }

// zone property-field conventions across boundary sources.
var (
	zoneIDFields     = []string{"subzone_c", "zone_code", "code", "id"}
	zoneNameFields   = []string{"subzone_n", "zone_name", "name"}
	zoneRegionFields = []string{"region_n", "region_name", "region"}
)

func (d *Zones) Run(ctx context.Context, deps Deps) (*Result, error) {
	start := time.Now()

	var (
		zones []model.Zone
		res   *Result
		err   error
	)
	if strings.HasSuffix(strings.ToLower(d.Src.FallbackPath), ".shp") && d.Src.URL == "" {
		zones, res, err = d.fromShapefile(d.Src.FallbackPath)
	} else {
		zones, res, err = d.fromGeoJSON(ctx, deps)
	}
	if err != nil {
		return nil, err
	}

	n, err := deps.Store.UpsertZones(ctx, zones)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: upsert zones")
	}
	res.Upserted = n

	if err := deps.Assigner.Reload(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: reload boundary cache")
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

func (d *Zones) fromGeoJSON(ctx context.Context, deps Deps) ([]model.Zone, *Result, error) {
	data, label, err := d.Src.ReadAll(ctx, deps.Fetcher)
	if err != nil {
		return nil, nil, err
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, nil, eris.Wrap(err, "ingest: decode zone boundaries")
	}

	res := NewResult(label)
	res.Fetched = len(fc.Features)

	now := time.Now().UTC()
	zones := make([]model.Zone, 0, len(fc.Features))
	for _, f := range fc.Features {
		z, ok := d.buildZone(f.Properties, f.Geometry, res)
		if !ok {
			continue
		}
		z.CreatedAt = now
		z.UpdatedAt = now
		zones = append(zones, z)
		res.Matched++
	}
	return zones, res, nil
}

// buildZone assembles one zone from feature properties and geometry.
// Missing name or undecodable geometry makes the row invalid, not fatal.
func (d *Zones) buildZone(props map[string]any, g geompkg.T, res *Result) (model.Zone, bool) {
	rec := Record(props)

	rawName, ok := ExtractString(rec, zoneNameFields...)
	if !ok {
		res.Invalid++
		return model.Zone{}, false
	}
	name, ok := namenorm.Normalize(rawName)
	if !ok {
		res.Invalid++
		return model.Zone{}, false
	}

	id, ok := ExtractString(rec, zoneIDFields...)
	if !ok {
		// Stable fallback: the normalized name is itself canonical.
		id = name
	}
	id = strings.ToUpper(strings.TrimSpace(id))

	region := model.RegionUnknown
	if raw, ok := ExtractString(rec, zoneRegionFields...); ok {
		region = model.ParseRegion(raw)
	}

	if g == nil {
		res.Invalid++
		return model.Zone{}, false
	}
	switch g.(type) {
	case *geompkg.Polygon, *geompkg.MultiPolygon:
	default:
		res.Invalid++
		return model.Zone{}, false
	}
	boundary, err := geojson.Marshal(g)
	if err != nil {
		zap.L().Warn("ingest: dropping zone with unencodable boundary",
			zap.String("zone", name), zap.Error(err))
		res.Invalid++
		return model.Zone{}, false
	}

	return model.Zone{ID: id, Name: name, Region: region, Boundary: boundary}, true
}
