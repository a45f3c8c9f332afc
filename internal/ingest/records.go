package ingest

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Record is one raw source row, field name to value.
type Record map[string]any

// ckanEnvelope is the data-portal wrapper shape: {"result": {"records": [...]}}.
type ckanEnvelope struct {
	Result struct {
		Records []Record `json:"records"`
	} `json:"result"`
}

// geoFeatureCollection is the GeoJSON shape; properties are flattened into
// the record and the geometry kept under "geometry".
type geoFeatureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Properties map[string]any  `json:"properties"`
		Geometry   json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// DecodeRecords accepts the three JSON payload shapes seen across the data
// portals: a CKAN result envelope, a bare array of objects, or a GeoJSON
// FeatureCollection.
func DecodeRecords(data []byte) ([]Record, error) {
	var envelope ckanEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Result.Records) > 0 {
		return envelope.Result.Records, nil
	}

	var bare []Record
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var fc geoFeatureCollection
	if err := json.Unmarshal(data, &fc); err == nil && fc.Type == "FeatureCollection" {
		records := make([]Record, 0, len(fc.Features))
		for _, f := range fc.Features {
			rec := make(Record, len(f.Properties)+1)
			for k, v := range f.Properties {
				rec[k] = v
			}
			if len(f.Geometry) > 0 {
				var geom any
				if err := json.Unmarshal(f.Geometry, &geom); err == nil {
					rec["geometry"] = geom
				}
			}
			records = append(records, rec)
		}
		return records, nil
	}

	return nil, eris.New("ingest: unrecognized payload shape")
}
