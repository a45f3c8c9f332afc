package ingest

import (
	"strconv"
	"strings"
)

// coordFieldPairs is the ordered list of coordinate field-name conventions
// seen across sources, tried in sequence; first hit wins. Kept small and
// explicit rather than open-ended guessing.
var coordFieldPairs = [][2]string{
	{"longitude", "latitude"},
	{"lng", "lat"},
	{"lon", "lat"},
	{"x", "y"},
	{"x_coord", "y_coord"},
}

// ExtractCoords pulls a coordinate pair out of a raw record. Values may be
// numbers or numeric strings; a GeoJSON Point geometry is accepted as a
// last resort. Field names match case-insensitively.
func ExtractCoords(rec Record) (x, y float64, ok bool) {
	lower := make(map[string]any, len(rec))
	for k, v := range rec {
		lower[strings.ToLower(k)] = v
	}

	for _, pair := range coordFieldPairs {
		xv, xok := asFloat(lower[pair[0]])
		yv, yok := asFloat(lower[pair[1]])
		if xok && yok {
			return xv, yv, true
		}
	}

	if geom, isMap := lower["geometry"].(map[string]any); isMap {
		if t, _ := geom["type"].(string); t == "Point" {
			if coords, isSlice := geom["coordinates"].([]any); isSlice && len(coords) >= 2 {
				xv, xok := asFloat(coords[0])
				yv, yok := asFloat(coords[1])
				if xok && yok {
					return xv, yv, true
				}
			}
		}
	}

	return 0, 0, false
}

// ExtractString returns the first non-empty string among the named fields,
// matching case-insensitively.
func ExtractString(rec Record, fields ...string) (string, bool) {
	lower := make(map[string]any, len(rec))
	for k, v := range rec {
		lower[strings.ToLower(k)] = v
	}
	for _, f := range fields {
		if s, ok := lower[strings.ToLower(f)].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// ExtractFloat returns the first numeric value among the named fields.
func ExtractFloat(rec Record, fields ...string) (float64, bool) {
	lower := make(map[string]any, len(rec))
	for k, v := range rec {
		lower[strings.ToLower(k)] = v
	}
	for _, f := range fields {
		if v, ok := asFloat(lower[strings.ToLower(f)]); ok {
			return v, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
