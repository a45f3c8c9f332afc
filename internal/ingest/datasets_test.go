package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lionmetrics/zonescope/internal/fetcher"
	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/namenorm"
	"github.com/lionmetrics/zonescope/internal/store"
	"github.com/lionmetrics/zonescope/internal/zone"
)

// newTestDeps wires a real SQLite store, an assigner over it, and local
// fixture sources.
func newTestDeps(t *testing.T) Deps {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	return Deps{
		Store:    s,
		Fetcher:  fetcher.NewMultiFetcher("test"),
		Assigner: zone.NewAssigner(s),
		Workers:  4,
	}
}

// ingestZones runs the boundary dataset so later stages have zones and a
// loaded assigner.
func ingestZones(t *testing.T, deps Deps) *Result {
	t.Helper()
	ds := &Zones{Src: Source{FallbackPath: filepath.Join("testdata", "zones.geojson")}}
	res, err := ds.Run(context.Background(), deps)
	require.NoError(t, err)
	return res
}

func TestZonesDataset_GeoJSON(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()

	res := ingestZones(t, deps)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 1, res.Invalid) // the aggregate "Total" feature
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 2, res.Upserted)
	assert.Equal(t, model.RunPartial, res.Status())

	zones, err := deps.Store.ListZones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "SZ-A", zones[0].ID)
	assert.Equal(t, "ALPHA PARK", zones[0].Name)
	assert.Equal(t, model.RegionCentral, zones[0].Region)
	assert.Equal(t, model.RegionEast, zones[1].Region)

	// The boundary cache was reloaded as part of the run.
	zoneID, ok := deps.Assigner.Assign(103.85, 1.35)
	require.True(t, ok)
	assert.Equal(t, "SZ-A", zoneID)
}

func TestZonesDataset_Reingest_Idempotent(t *testing.T) {
	deps := newTestDeps(t)

	ingestZones(t, deps)
	ingestZones(t, deps)

	zones, err := deps.Store.ListZones(context.Background())
	require.NoError(t, err)
	assert.Len(t, zones, 2)
}

func TestHawkersDataset(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()
	ingestZones(t, deps)

	ds := &Hawkers{Src: Source{FallbackPath: filepath.Join("testdata", "hawkers.json")}}
	res, err := ds.Run(ctx, deps)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Fetched)
	assert.Equal(t, 2, res.Invalid) // missing name, missing coords
	assert.Equal(t, 1, res.Deduped) // the near-duplicate Maxwell row
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, 3, res.Upserted)
	assert.Equal(t, model.RunPartial, res.Status())

	// Both coordinate systems appear in the breakdown.
	assert.Equal(t, 1, res.CRS["svy21"])
	assert.GreaterOrEqual(t, res.CRS["wgs84"], 2)

	points, err := deps.Store.ListPoints(ctx, model.KindHawker)
	require.NoError(t, err)
	require.Len(t, points, 3)

	byName := make(map[string]model.PointFeature, len(points))
	for _, p := range points {
		byName[p.Name] = p
	}

	maxwell := byName["MAXWELL FOOD CENTRE"]
	require.NotNil(t, maxwell.ZoneID)
	assert.Equal(t, "SZ-A", *maxwell.ZoneID)
	assert.Equal(t, 100.0, maxwell.Capacity)

	// SVY21 source coordinates were converted before assignment.
	projected := byName["PROJECTED MARKET"]
	require.NotNil(t, projected.ZoneID)
	assert.Equal(t, "SZ-A", *projected.ZoneID)
	assert.InDelta(t, 103.833333, projected.Lon, 1e-4)
	assert.InDelta(t, 1.366666, projected.Lat, 1e-4)

	// Outside every boundary: kept, zone stays null.
	far := byName["FAR FLUNG STALLS"]
	assert.Nil(t, far.ZoneID)
}

func TestHawkersDataset_ReingestKeepsIDsStable(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()
	ingestZones(t, deps)

	ds := &Hawkers{Src: Source{FallbackPath: filepath.Join("testdata", "hawkers.json")}}
	_, err := ds.Run(ctx, deps)
	require.NoError(t, err)
	first, err := deps.Store.ListPoints(ctx, model.KindHawker)
	require.NoError(t, err)

	_, err = ds.Run(ctx, deps)
	require.NoError(t, err)
	second, err := deps.Store.ListPoints(ctx, model.KindHawker)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestPopulationDataset(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()
	ingestZones(t, deps)

	zones, err := deps.Store.ListZones(ctx)
	require.NoError(t, err)
	deps.Resolver = namenorm.NewResolver(nil, zones)

	ds := &Population{Src: Source{FallbackPath: filepath.Join("testdata", "population.csv")}}
	res, err := ds.Run(ctx, deps)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 1, res.Invalid) // the "Total" aggregate row
	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, 2, res.Upserted)
	assert.Equal(t, model.RunPartial, res.Status())
	assert.Contains(t, res.UnmatchedSample, "NOWHERE MEADOW")

	pop, err := deps.Store.ListPopulation(ctx)
	require.NoError(t, err)
	require.Len(t, pop, 2)
	// Latest vintage wins over the 2019 row for the same zone.
	assert.Equal(t, 2023, pop[0].Year)
	assert.Equal(t, int64(31250), pop[0].Total)
	assert.Equal(t, int64(8400), pop[1].Total)

	unmatched, err := deps.Store.ListUnmatched(ctx, "population", 10)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "Nowhere Meadow", unmatched[0].RawName)
	assert.Contains(t, unmatched[0].Reason, "No match for normalized name: 'NOWHERE MEADOW'")
}

func TestPopulationDataset_AliasResolvesBeforeDirect(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()
	ingestZones(t, deps)

	zones, err := deps.Store.ListZones(ctx)
	require.NoError(t, err)
	deps.Resolver = namenorm.NewResolver(map[string]string{"NOWHERE MEADOW": "SZ-B"}, zones)

	ds := &Population{Src: Source{FallbackPath: filepath.Join("testdata", "population.csv")}}
	res, err := ds.Run(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Unmatched)
	assert.Equal(t, 4, res.Matched)
}
