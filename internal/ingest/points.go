package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lionmetrics/zonescope/internal/crs"
	"github.com/lionmetrics/zonescope/internal/dedupe"
	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/namenorm"
)

// pointRow is one normalized source row, coordinates already in WGS84.
type pointRow struct {
	name            string
	lon, lat        float64
	capacity        float64
	lineCount       int
	frequencyWeight float64
}

// pointSpec parameterizes the shared point pipeline for one dataset kind.
type pointSpec struct {
	kind       model.PointKind
	source     Source
	nameFields []string

	// attrs fills the kind-specific fields from the raw record. Optional.
	attrs func(rec Record, row *pointRow)
}

// runPointPipeline is the common fetch → normalize → dedupe → assign →
// upsert sequence for every point dataset.
func runPointPipeline(ctx context.Context, deps Deps, spec pointSpec) (*Result, error) {
	start := time.Now()

	data, label, err := spec.source.ReadAll(ctx, deps.Fetcher)
	if err != nil {
		return nil, err
	}

	records, err := DecodeRecords(data)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: decode %s payload", spec.kind)
	}

	// Normalize. Record-level work is independent, so fan it out.
	rows, res := fanOut(records, deps.Workers, func(rec Record, res *Result) (pointRow, bool) {
		raw, ok := ExtractString(rec, spec.nameFields...)
		if !ok {
			res.Invalid++
			return pointRow{}, false
		}
		name, ok := namenorm.Normalize(raw)
		if !ok {
			res.Invalid++
			return pointRow{}, false
		}

		x, y, ok := ExtractCoords(rec)
		if !ok {
			res.Invalid++
			return pointRow{}, false
		}
		lon, lat, system := crs.ToWGS84(x, y)
		res.CountCRS(string(system))

		row := pointRow{name: name, lon: lon, lat: lat}
		if spec.attrs != nil {
			spec.attrs(rec, &row)
		}
		return row, true
	})
	res.Source = label
	res.Fetched = len(records)

	kept, removed := dedupe.Dedupe(rows, func(r pointRow) (string, float64, float64) {
		return r.name, r.lon, r.lat
	})
	res.Deduped = removed

	now := time.Now().UTC()
	features := make([]model.PointFeature, 0, len(kept))
	for _, r := range kept {
		p := model.PointFeature{
			ID:              model.PointID(r.name, r.lon, r.lat),
			Kind:            spec.kind,
			Name:            r.name,
			Lon:             r.lon,
			Lat:             r.lat,
			Capacity:        r.capacity,
			LineCount:       r.lineCount,
			FrequencyWeight: r.frequencyWeight,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if zoneID, ok := deps.Assigner.Assign(r.lon, r.lat); ok {
			p.ZoneID = &zoneID
			res.Matched++
		} else {
			// Outside every boundary: keep the point with a null zone.
			res.AddUnmatched(r.name)
		}
		features = append(features, p)
	}

	n, err := deps.Store.UpsertPoints(ctx, features)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: upsert %s points", spec.kind)
	}
	res.Upserted = n
	res.Elapsed = time.Since(start)
	return res, nil
}
