// Package store persists zones, point features, population counts, and
// scoring output. Two implementations exist: SQLite for single-node use and
// Postgres for shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/lionmetrics/zonescope/internal/model"
)

// SnapshotFilter narrows ListSnapshots.
type SnapshotFilter struct {
	Dataset string          `json:"dataset,omitempty"`
	Status  model.RunStatus `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// Store is the persistence interface shared by the ingestion pipeline, the
// scoring engine, and the API server.
type Store interface {
	// Zones
	UpsertZones(ctx context.Context, zones []model.Zone) (int, error)
	ListZones(ctx context.Context) ([]model.Zone, error)

	// Population. The batch applies atomically, and a row only replaces the
	// stored one when its year is >= the stored year.
	UpsertPopulation(ctx context.Context, records []model.PopulationRecord) (int, error)
	ListPopulation(ctx context.Context) ([]model.PopulationRecord, error)

	// Point features
	UpsertPoints(ctx context.Context, points []model.PointFeature) (int, error)
	ListPoints(ctx context.Context, kind model.PointKind) ([]model.PointFeature, error)

	// Audit trail
	RecordUnmatched(ctx context.Context, records []model.UnmatchedRecord) error
	ListUnmatched(ctx context.Context, dataset string, limit int) ([]model.UnmatchedRecord, error)

	// Ingestion snapshots
	StartSnapshot(ctx context.Context, dataset, source string) (*model.IngestionSnapshot, error)
	FinishSnapshot(ctx context.Context, id int64, status model.RunStatus, metadata map[string]any) error
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.IngestionSnapshot, error)

	// Scoring
	GetKernelConfig(ctx context.Context, name string) (*model.KernelConfig, error)
	EnsureKernelConfig(ctx context.Context, cfg model.KernelConfig) (*model.KernelConfig, error)
	CreateScoreSnapshot(ctx context.Context, kernelConfigID int64, scores []model.ZoneScore) (*model.ScoreSnapshot, error)
	LatestScores(ctx context.Context) (*model.ScoreSnapshot, []model.ZoneScore, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver. Supported drivers are
// "sqlite" and "postgres".
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unsupported driver %q (want sqlite or postgres)", driver)
	}
}
