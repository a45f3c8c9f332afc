package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lionmetrics/zonescope/internal/geo"
	"github.com/lionmetrics/zonescope/internal/model"
)

// Store is the persistence surface the scoring engine needs.
type Store interface {
	ListZones(ctx context.Context) ([]model.Zone, error)
	ListPopulation(ctx context.Context) ([]model.PopulationRecord, error)
	ListPoints(ctx context.Context, kind model.PointKind) ([]model.PointFeature, error)
	GetKernelConfig(ctx context.Context, name string) (*model.KernelConfig, error)
	CreateScoreSnapshot(ctx context.Context, kernelConfigID int64, scores []model.ZoneScore) (*model.ScoreSnapshot, error)
}

// CentroidSource supplies per-zone centroids, normally the zone assigner's
// boundary cache.
type CentroidSource interface {
	Centroids() map[string][2]float64
}

// Engine runs one full scoring pass: all per-zone raw values are held in
// memory so cross-zone statistics (median/MAD, percentile) see the complete
// distribution. Acceptable at city-administrative-zone scale.
type Engine struct {
	store     Store
	centroids CentroidSource
}

// NewEngine creates a scoring engine.
func NewEngine(store Store, centroids CentroidSource) *Engine {
	return &Engine{store: store, centroids: centroids}
}

// popPoint is a population mass located at its zone's centroid.
type popPoint struct {
	lon, lat float64
	count    float64
}

// Run computes demand, supply, and accessibility for every zone under the
// named kernel config and persists the result as one new immutable
// ScoreSnapshot. Prior snapshots are never touched.
func (e *Engine) Run(ctx context.Context, configName string) (*model.ScoreSnapshot, []model.ZoneScore, error) {
	log := zap.L().With(zap.String("component", "scoring.engine"), zap.String("kernel_config", configName))
	start := time.Now()

	cfg, err := e.store.GetKernelConfig(ctx, configName)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "scoring: load kernel config %q", configName)
	}

	zones, err := e.store.ListZones(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scoring: list zones")
	}
	cents := e.centroids.Centroids()

	// Only zones with a computable centroid participate; without one there
	// is no KDE target location.
	scored := make([]model.Zone, 0, len(zones))
	for _, z := range zones {
		if _, ok := cents[z.ID]; ok {
			scored = append(scored, z)
		}
	}
	if len(scored) == 0 {
		return nil, nil, eris.New("scoring: no zones with boundaries to score")
	}

	popPoints, err := e.loadPopulationPoints(ctx, cents)
	if err != nil {
		return nil, nil, err
	}
	hawkers, err := e.store.ListPoints(ctx, model.KindHawker)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scoring: list hawkers")
	}
	mrtExits, err := e.store.ListPoints(ctx, model.KindMRTExit)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scoring: list mrt exits")
	}
	busStops, err := e.store.ListPoints(ctx, model.KindBusStop)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scoring: list bus stops")
	}

	// Competition factors couple each supply point to its local demand
	// density, suppressing oversupplied areas.
	compFactors := make([]float64, len(hawkers))
	for i, h := range hawkers {
		compFactors[i] = competitionFactor(h, popPoints, cfg.BandwidthSupply)
	}

	demand := make([]float64, len(scored))
	supply := make([]float64, len(scored))
	access := make([]float64, len(scored))

	for i, z := range scored {
		c := cents[z.ID]
		lon, lat := c[0], c[1]

		for _, p := range popPoints {
			demand[i] += p.count * Gaussian(geo.Haversine(lon, lat, p.lon, p.lat), cfg.BandwidthDemand)
		}
		for j, h := range hawkers {
			d := geo.Haversine(lon, lat, h.Lon, h.Lat)
			supply[i] += h.Capacity * Gaussian(d, cfg.BandwidthSupply) * compFactors[j]
		}

		var mrt, bus float64
		for _, m := range mrtExits {
			mrt += float64(m.LineCount) * Gaussian(geo.Haversine(lon, lat, m.Lon, m.Lat), cfg.BandwidthMRT)
		}
		for _, b := range busStops {
			bus += b.FrequencyWeight * Gaussian(geo.Haversine(lon, lat, b.Lon, b.Lat), cfg.BandwidthBus)
		}
		access[i] = cfg.BetaMRT*mrt + cfg.BetaBus*bus
	}

	zDemand, err := RobustZScores(demand)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scoring: normalize demand")
	}
	zSupply, err := RobustZScores(supply)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scoring: normalize supply")
	}
	zAccess, err := RobustZScores(access)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scoring: normalize accessibility")
	}

	scores := make([]model.ZoneScore, len(scored))
	for i, z := range scored {
		// TODO: the composite weights reuse the kernel bandwidths (demand,
		// supply, MRT); introduce independent component weights on
		// KernelConfig and migrate existing configs.
		h := cfg.BandwidthDemand*zDemand[i] - cfg.BandwidthSupply*zSupply[i] + cfg.BandwidthMRT*zAccess[i]
		scores[i] = model.ZoneScore{
			ZoneID:    z.ID,
			ZDemand:   zDemand[i],
			ZSupply:   zSupply[i],
			ZAccess:   zAccess[i],
			Composite: h,
		}
	}

	rankPercentiles(scores)

	snap, err := e.store.CreateScoreSnapshot(ctx, cfg.ID, scores)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scoring: persist snapshot")
	}

	log.Info("scoring run complete",
		zap.Int("zones", len(scores)),
		zap.Int64("snapshot_id", snap.ID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return snap, scores, nil
}

func (e *Engine) loadPopulationPoints(ctx context.Context, cents map[string][2]float64) ([]popPoint, error) {
	recs, err := e.store.ListPopulation(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: list population")
	}
	pts := make([]popPoint, 0, len(recs))
	for _, r := range recs {
		c, ok := cents[r.ZoneID]
		if !ok {
			continue
		}
		pts = append(pts, popPoint{lon: c[0], lat: c[1], count: float64(r.Total)})
	}
	return pts, nil
}

// competitionFactor shrinks a supply point's contribution as the population
// near it grows: max(0.1, 1 - nearbyPopulation/10000), where nearby
// population is the kernel-weighted population within twice the supply
// bandwidth around the point.
func competitionFactor(h model.PointFeature, popPoints []popPoint, bandwidthSupply float64) float64 {
	var nearby float64
	cutoff := 2 * bandwidthSupply
	for _, p := range popPoints {
		d := geo.Haversine(h.Lon, h.Lat, p.lon, p.lat)
		if d > cutoff {
			continue
		}
		nearby += p.count * Gaussian(d, bandwidthSupply)
	}
	return math.Max(0.1, 1-nearby/10000)
}

// rankPercentiles fills in percentile ranks: zones are ranked descending by
// composite (ties broken by zone ID for determinism) and the zone at rank r
// of N gets (N - r + 1) / N * 100, so the top zone approaches 100 and the
// bottom 100/N.
func rankPercentiles(scores []model.ZoneScore) {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa.Composite != sb.Composite {
			return sa.Composite > sb.Composite
		}
		return sa.ZoneID < sb.ZoneID
	})

	n := float64(len(scores))
	for rank, idx := range order {
		scores[idx].Percentile = (n - float64(rank+1) + 1) / n * 100
	}
}
