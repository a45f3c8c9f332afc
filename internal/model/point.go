package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// PointKind identifies the dataset a point feature came from.
type PointKind string

const (
	KindHawker  PointKind = "hawker"
	KindMRTExit PointKind = "mrt_exit"
	KindBusStop PointKind = "bus_stop"
)

// PointFeature is a georeferenced feature (hawker centre, MRT exit, bus
// stop). ZoneID is nil when the point falls outside every known zone
// boundary or assignment failed.
type PointFeature struct {
	ID   string    `json:"id"`
	Kind PointKind `json:"kind"`
	Name string    `json:"name"`
	Lon  float64   `json:"lon"`
	Lat  float64   `json:"lat"`

	ZoneID *string `json:"zone_id,omitempty"`

	// Kind-specific numeric attributes. Capacity for hawkers, LineCount
	// for MRT exits, FrequencyWeight for bus stops; unused fields are zero.
	Capacity        float64 `json:"capacity,omitempty"`
	LineCount       int     `json:"line_count,omitempty"`
	FrequencyWeight float64 `json:"frequency_weight,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PointID derives the stable feature ID from the name and the coordinates
// rounded to 6 decimal places, so re-ingesting unchanged data produces the
// same key instead of a duplicate row.
func PointID(name string, lon, lat float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.6f|%.6f", name, lon, lat)))
	return hex.EncodeToString(sum[:])[:12]
}

// UnmatchedRecord is an audit-only entry for a source row that could not be
// normalized or matched. Never updated; accumulates across runs.
type UnmatchedRecord struct {
	ID        int64           `json:"id"`
	Dataset   string          `json:"dataset"`
	SourceKey string          `json:"source_key"`
	RawName   string          `json:"raw_name"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
