package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lionmetrics/zonescope/internal/model"
)

type fakeStore struct {
	zones      []model.Zone
	population []model.PopulationRecord
	points     map[model.PointKind][]model.PointFeature
	config     *model.KernelConfig

	savedConfigID int64
	savedScores   []model.ZoneScore
	snapshots     int64
}

func (f *fakeStore) ListZones(context.Context) ([]model.Zone, error) { return f.zones, nil }
func (f *fakeStore) ListPopulation(context.Context) ([]model.PopulationRecord, error) {
	return f.population, nil
}
func (f *fakeStore) ListPoints(_ context.Context, kind model.PointKind) ([]model.PointFeature, error) {
	return f.points[kind], nil
}
func (f *fakeStore) GetKernelConfig(context.Context, string) (*model.KernelConfig, error) {
	return f.config, nil
}
func (f *fakeStore) CreateScoreSnapshot(_ context.Context, cfgID int64, scores []model.ZoneScore) (*model.ScoreSnapshot, error) {
	f.snapshots++
	f.savedConfigID = cfgID
	f.savedScores = append([]model.ZoneScore(nil), scores...)
	return &model.ScoreSnapshot{ID: f.snapshots, KernelConfigID: cfgID, CreatedAt: time.Now()}, nil
}

type fakeCentroids map[string][2]float64

func (f fakeCentroids) Centroids() map[string][2]float64 { return f }

func testConfig() *model.KernelConfig {
	return &model.KernelConfig{
		ID:              7,
		Name:            "default",
		BandwidthDemand: 1500,
		BandwidthSupply: 800,
		BandwidthMRT:    600,
		BandwidthBus:    300,
		BetaMRT:         1.0,
		BetaBus:         0.3,
	}
}

// Three zone centroids spaced ~2.2 km apart along the equator-adjacent
// latitude band, population massed at zone A, supply at zone C.
func testFixture() (*fakeStore, fakeCentroids) {
	cents := fakeCentroids{
		"SZ-A": {103.80, 1.35},
		"SZ-B": {103.82, 1.35},
		"SZ-C": {103.84, 1.35},
	}
	store := &fakeStore{
		zones: []model.Zone{
			{ID: "SZ-A", Name: "Alpha"},
			{ID: "SZ-B", Name: "Beta"},
			{ID: "SZ-C", Name: "Gamma"},
		},
		population: []model.PopulationRecord{
			{ZoneID: "SZ-A", Year: 2024, Total: 30000},
			{ZoneID: "SZ-B", Year: 2024, Total: 5000},
			{ZoneID: "SZ-C", Year: 2024, Total: 1000},
		},
		points: map[model.PointKind][]model.PointFeature{
			model.KindHawker: {
				{ID: "h1", Kind: model.KindHawker, Name: "Gamma Food Centre", Lon: 103.84, Lat: 1.35, Capacity: 100},
			},
			model.KindMRTExit: {
				{ID: "m1", Kind: model.KindMRTExit, Name: "Beta Exit A", Lon: 103.82, Lat: 1.35, LineCount: 2},
			},
			model.KindBusStop: {
				{ID: "b1", Kind: model.KindBusStop, Name: "Beta Stop", Lon: 103.821, Lat: 1.35, FrequencyWeight: 4},
			},
		},
		config: testConfig(),
	}
	return store, cents
}

func TestEngineRun_PersistsSnapshot(t *testing.T) {
	store, cents := testFixture()
	eng := NewEngine(store, cents)

	snap, scores, err := eng.Run(context.Background(), "default")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(7), store.savedConfigID)
	assert.Len(t, scores, 3)
	assert.Equal(t, scores, store.savedScores)
}

func TestEngineRun_PercentileInvariants(t *testing.T) {
	store, cents := testFixture()
	eng := NewEngine(store, cents)

	_, scores, err := eng.Run(context.Background(), "default")
	require.NoError(t, err)

	n := float64(len(scores))
	var maxScore, minScore model.ZoneScore
	maxScore, minScore = scores[0], scores[0]
	for _, s := range scores {
		assert.LessOrEqual(t, s.Percentile, 100.0)
		assert.GreaterOrEqual(t, s.Percentile, 100.0/n)
		if s.Composite > maxScore.Composite {
			maxScore = s
		}
		if s.Composite < minScore.Composite {
			minScore = s
		}
	}
	assert.Equal(t, 100.0, maxScore.Percentile)
	assert.Equal(t, 100.0/n, minScore.Percentile)
}

func TestEngineRun_DemandFollowsPopulation(t *testing.T) {
	store, cents := testFixture()
	eng := NewEngine(store, cents)

	_, scores, err := eng.Run(context.Background(), "default")
	require.NoError(t, err)

	byZone := map[string]model.ZoneScore{}
	for _, s := range scores {
		byZone[s.ZoneID] = s
	}
	// Population is massed at A, so demand must decrease A > B > C.
	assert.Greater(t, byZone["SZ-A"].ZDemand, byZone["SZ-B"].ZDemand)
	assert.Greater(t, byZone["SZ-B"].ZDemand, byZone["SZ-C"].ZDemand)
	// The only hawker sits at C, so supply is highest there.
	assert.Greater(t, byZone["SZ-C"].ZSupply, byZone["SZ-A"].ZSupply)
}

func TestEngineRun_DeterministicAcrossRuns(t *testing.T) {
	store, cents := testFixture()
	eng := NewEngine(store, cents)

	_, first, err := eng.Run(context.Background(), "default")
	require.NoError(t, err)
	snap2, second, err := eng.Run(context.Background(), "default")
	require.NoError(t, err)

	assert.Equal(t, first, second, "same inputs produce identical scores")
	assert.Equal(t, int64(2), snap2.ID, "each run creates a new snapshot")
}

func TestEngineRun_NoZonesErrors(t *testing.T) {
	store, _ := testFixture()
	eng := NewEngine(store, fakeCentroids{})
	_, _, err := eng.Run(context.Background(), "default")
	assert.Error(t, err)
}

func TestEngineRun_SkipsZonesWithoutCentroid(t *testing.T) {
	store, cents := testFixture()
	delete(cents, "SZ-C")
	eng := NewEngine(store, cents)

	_, scores, err := eng.Run(context.Background(), "default")
	require.NoError(t, err)
	assert.Len(t, scores, 2)
}

func TestCompetitionFactor_Bounds(t *testing.T) {
	h := model.PointFeature{Lon: 103.82, Lat: 1.35}

	// No population nearby: full factor.
	assert.Equal(t, 1.0, competitionFactor(h, nil, 800))

	// Overwhelming co-located population: clamped at the floor.
	dense := []popPoint{{lon: 103.82, lat: 1.35, count: 1e6}}
	assert.Equal(t, 0.1, competitionFactor(h, dense, 800))

	// Population beyond twice the bandwidth is excluded entirely.
	far := []popPoint{{lon: 103.90, lat: 1.35, count: 1e6}} // ~8.9 km away
	assert.Equal(t, 1.0, competitionFactor(h, far, 800))
}
