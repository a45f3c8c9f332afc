// Package model defines the domain entities shared across the ingestion
// pipeline, the scoring engine, and the persistence layer.
package model

import (
	"encoding/json"
	"time"
)

// Region classifies a zone into one of the planning regions.
type Region string

const (
	RegionCentral   Region = "central"
	RegionEast      Region = "east"
	RegionNorth     Region = "north"
	RegionNorthEast Region = "north_east"
	RegionWest      Region = "west"
	RegionUnknown   Region = "unknown"
)

// ParseRegion maps a free-text region label to a Region, defaulting to
// RegionUnknown for anything unrecognized.
func ParseRegion(s string) Region {
	switch Region(normalizeRegionKey(s)) {
	case RegionCentral:
		return RegionCentral
	case RegionEast:
		return RegionEast
	case RegionNorth:
		return RegionNorth
	case RegionNorthEast:
		return RegionNorthEast
	case RegionWest:
		return RegionWest
	default:
		return RegionUnknown
	}
}

func normalizeRegionKey(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	// "north east region" -> "north_east_region" -> trim suffix
	key := string(out)
	const suffix = "_region"
	if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
		key = key[:len(key)-len(suffix)]
	}
	return key
}

// Zone is a canonical administrative unit. The ID is globally unique and
// immutable once assigned; zones are created and updated only by the
// zone-boundary ingestion and never deleted during normal operation.
type Zone struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Region    Region          `json:"region"`
	Boundary  json.RawMessage `json:"boundary,omitempty"` // GeoJSON Polygon or MultiPolygon, WGS84
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PopulationRecord is the current population count for a zone. At most one
// current record exists per zone; updates apply only when the incoming year
// is >= the existing year.
type PopulationRecord struct {
	ZoneID    string    `json:"zone_id"`
	Year      int       `json:"year"`
	Total     int64     `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}
