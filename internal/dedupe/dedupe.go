// Package dedupe collapses near-duplicate point records prior to
// persistence: same name (case-insensitive) within 30 meters is one record.
package dedupe

import (
	"strings"

	"github.com/lionmetrics/zonescope/internal/geo"
)

// MergeRadiusMeters is the great-circle distance under which two same-named
// points are considered the same physical feature.
const MergeRadiusMeters = 30.0

// Dedupe groups items by case-insensitive name equality and, within each
// group, drops any item within MergeRadiusMeters of an earlier-seen item
// (first-seen wins). Same-named items further apart stay distinct.
// Returns the kept items in input order and the number dropped.
func Dedupe[T any](items []T, key func(T) (name string, lon, lat float64)) ([]T, int) {
	type rep struct{ lon, lat float64 }
	seen := make(map[string][]rep, len(items))

	kept := items[:0:0]
	dropped := 0

	for _, it := range items {
		name, lon, lat := key(it)
		nameKey := strings.ToLower(strings.TrimSpace(name))

		dup := false
		for _, r := range seen[nameKey] {
			if geo.Haversine(lon, lat, r.lon, r.lat) <= MergeRadiusMeters {
				dup = true
				break
			}
		}
		if dup {
			dropped++
			continue
		}

		seen[nameKey] = append(seen[nameKey], rep{lon: lon, lat: lat})
		kept = append(kept, it)
	}

	return kept, dropped
}
