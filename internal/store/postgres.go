package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lionmetrics/zonescope/internal/db"
	"github.com/lionmetrics/zonescope/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the underlying pool for subsystems that need direct access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS zones (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	region     TEXT NOT NULL DEFAULT 'unknown',
	boundary   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS population (
	zone_id    TEXT PRIMARY KEY REFERENCES zones(id),
	year       INTEGER NOT NULL,
	total      BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS point_features (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	name             TEXT NOT NULL,
	lon              DOUBLE PRECISION NOT NULL,
	lat              DOUBLE PRECISION NOT NULL,
	zone_id          TEXT REFERENCES zones(id),
	capacity         DOUBLE PRECISION NOT NULL DEFAULT 0,
	line_count       INTEGER NOT NULL DEFAULT 0,
	frequency_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS unmatched_records (
	id         BIGSERIAL PRIMARY KEY,
	dataset    TEXT NOT NULL,
	source_key TEXT NOT NULL,
	raw_name   TEXT NOT NULL,
	reason     TEXT NOT NULL,
	payload    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingestion_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	dataset     TEXT NOT NULL,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	metadata    JSONB
);

CREATE TABLE IF NOT EXISTS kernel_configs (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL UNIQUE,
	bandwidth_demand DOUBLE PRECISION NOT NULL,
	bandwidth_supply DOUBLE PRECISION NOT NULL,
	bandwidth_mrt    DOUBLE PRECISION NOT NULL,
	bandwidth_bus    DOUBLE PRECISION NOT NULL,
	beta_mrt         DOUBLE PRECISION NOT NULL,
	beta_bus         DOUBLE PRECISION NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS score_snapshots (
	id               BIGSERIAL PRIMARY KEY,
	kernel_config_id BIGINT NOT NULL REFERENCES kernel_configs(id),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS zone_scores (
	snapshot_id BIGINT NOT NULL REFERENCES score_snapshots(id),
	zone_id     TEXT NOT NULL REFERENCES zones(id),
	z_demand    DOUBLE PRECISION NOT NULL,
	z_supply    DOUBLE PRECISION NOT NULL,
	z_access    DOUBLE PRECISION NOT NULL,
	composite   DOUBLE PRECISION NOT NULL,
	percentile  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (snapshot_id, zone_id)
);

CREATE INDEX IF NOT EXISTS idx_point_features_kind ON point_features(kind);
CREATE INDEX IF NOT EXISTS idx_point_features_zone ON point_features(zone_id);
CREATE INDEX IF NOT EXISTS idx_unmatched_dataset ON unmatched_records(dataset);
CREATE INDEX IF NOT EXISTS idx_snapshots_dataset ON ingestion_snapshots(dataset, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_zone_scores_zone ON zone_scores(zone_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertZones(ctx context.Context, zones []model.Zone) (int, error) {
	if len(zones) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(zones))
	for _, z := range zones {
		var boundary any
		if len(z.Boundary) > 0 {
			boundary = []byte(z.Boundary)
		}
		rows = append(rows, []any{z.ID, z.Name, string(z.Region), boundary, now, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:        "zones",
		Columns:      []string{"id", "name", "region", "boundary", "created_at", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"name", "region", "boundary", "updated_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert zones")
	}
	return int(n), nil
}

func (s *PostgresStore) ListZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, region, boundary, created_at, updated_at FROM zones ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list zones")
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		var region string
		var boundary []byte
		if err := rows.Scan(&z.ID, &z.Name, &region, &boundary, &z.CreatedAt, &z.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone")
		}
		z.Region = model.Region(region)
		if len(boundary) > 0 {
			z.Boundary = json.RawMessage(boundary)
		}
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "postgres: list zones iterate")
}

func (s *PostgresStore) UpsertPopulation(ctx context.Context, records []model.PopulationRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{r.ZoneID, r.Year, r.Total, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:        "population",
		Columns:      []string{"zone_id", "year", "total", "updated_at"},
		ConflictKeys: []string{"zone_id"},
		UpdateCols:   []string{"year", "total", "updated_at"},
		UpdateWhere:  "EXCLUDED.year >= population.year",
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert population")
	}
	return int(n), nil
}

func (s *PostgresStore) ListPopulation(ctx context.Context) ([]model.PopulationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT zone_id, year, total, updated_at FROM population ORDER BY zone_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list population")
	}
	defer rows.Close()

	var records []model.PopulationRecord
	for rows.Next() {
		var r model.PopulationRecord
		if err := rows.Scan(&r.ZoneID, &r.Year, &r.Total, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan population")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list population iterate")
}

func (s *PostgresStore) UpsertPoints(ctx context.Context, points []model.PointFeature) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		var zoneID any
		if p.ZoneID != nil {
			zoneID = *p.ZoneID
		}
		rows = append(rows, []any{
			p.ID, string(p.Kind), p.Name, p.Lon, p.Lat, zoneID,
			p.Capacity, p.LineCount, p.FrequencyWeight, now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table: "point_features",
		Columns: []string{
			"id", "kind", "name", "lon", "lat", "zone_id",
			"capacity", "line_count", "frequency_weight", "created_at", "updated_at",
		},
		ConflictKeys: []string{"id"},
		UpdateCols: []string{
			"kind", "name", "lon", "lat", "zone_id",
			"capacity", "line_count", "frequency_weight", "updated_at",
		},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert points")
	}
	return int(n), nil
}

func (s *PostgresStore) ListPoints(ctx context.Context, kind model.PointKind) ([]model.PointFeature, error) {
	query := `SELECT id, kind, name, lon, lat, zone_id, capacity, line_count, frequency_weight, created_at, updated_at
	          FROM point_features`
	var args []any
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list points")
	}
	defer rows.Close()

	var points []model.PointFeature
	for rows.Next() {
		var p model.PointFeature
		var pkind string
		var zoneID *string
		if err := rows.Scan(&p.ID, &pkind, &p.Name, &p.Lon, &p.Lat, &zoneID,
			&p.Capacity, &p.LineCount, &p.FrequencyWeight, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan point")
		}
		p.Kind = model.PointKind(pkind)
		p.ZoneID = zoneID
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "postgres: list points iterate")
}

func (s *PostgresStore) RecordUnmatched(ctx context.Context, records []model.UnmatchedRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		var payload any
		if len(r.Payload) > 0 {
			payload = []byte(r.Payload)
		}
		rows = append(rows, []any{r.Dataset, r.SourceKey, r.RawName, r.Reason, payload, now})
	}

	_, err := db.CopyInto(ctx, s.pool, "unmatched_records",
		[]string{"dataset", "source_key", "raw_name", "reason", "payload", "created_at"}, rows)
	return eris.Wrap(err, "postgres: record unmatched")
}

func (s *PostgresStore) ListUnmatched(ctx context.Context, dataset string, limit int) ([]model.UnmatchedRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, dataset, source_key, raw_name, reason, payload, created_at FROM unmatched_records`
	var args []any
	if dataset != "" {
		query += ` WHERE dataset = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
		args = append(args, dataset, limit)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unmatched")
	}
	defer rows.Close()

	var records []model.UnmatchedRecord
	for rows.Next() {
		var r model.UnmatchedRecord
		var payload []byte
		if err := rows.Scan(&r.ID, &r.Dataset, &r.SourceKey, &r.RawName, &r.Reason, &payload, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unmatched")
		}
		if len(payload) > 0 {
			r.Payload = json.RawMessage(payload)
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list unmatched iterate")
}

func (s *PostgresStore) StartSnapshot(ctx context.Context, dataset, source string) (*model.IngestionSnapshot, error) {
	now := time.Now().UTC()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ingestion_snapshots (dataset, source, status, started_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		dataset, source, string(model.RunRunning), now,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: start snapshot for %s", dataset)
	}
	return &model.IngestionSnapshot{
		ID:        id,
		Dataset:   dataset,
		Source:    source,
		Status:    model.RunRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinishSnapshot(ctx context.Context, id int64, status model.RunStatus, metadata map[string]any) error {
	var metaJSON []byte
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal snapshot metadata")
		}
		metaJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_snapshots SET status = $1, finished_at = $2, metadata = $3 WHERE id = $4`,
		string(status), time.Now().UTC(), metaJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish snapshot %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("snapshot not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.IngestionSnapshot, error) {
	query := `SELECT id, dataset, source, status, started_at, finished_at, metadata
	          FROM ingestion_snapshots WHERE 1=1`
	var args []any
	n := 0
	next := func() string {
		n++
		return "$" + strconv.Itoa(n)
	}
	if filter.Dataset != "" {
		query += ` AND dataset = ` + next()
		args = append(args, filter.Dataset)
	}
	if filter.Status != "" {
		query += ` AND status = ` + next()
		args = append(args, string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ` + next()
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var snaps []model.IngestionSnapshot
	for rows.Next() {
		var snap model.IngestionSnapshot
		var status string
		var finished *time.Time
		var meta []byte
		if err := rows.Scan(&snap.ID, &snap.Dataset, &snap.Source, &status, &snap.StartedAt, &finished, &meta); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		snap.Status = model.RunStatus(status)
		snap.FinishedAt = finished
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &snap.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal snapshot metadata")
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}

func (s *PostgresStore) GetKernelConfig(ctx context.Context, name string) (*model.KernelConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, bandwidth_demand, bandwidth_supply, bandwidth_mrt, bandwidth_bus, beta_mrt, beta_bus, created_at
		 FROM kernel_configs WHERE name = $1`,
		name,
	)

	var cfg model.KernelConfig
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.BandwidthDemand, &cfg.BandwidthSupply,
		&cfg.BandwidthMRT, &cfg.BandwidthBus, &cfg.BetaMRT, &cfg.BetaBus, &cfg.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("kernel config not found: %s", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get kernel config")
	}
	return &cfg, nil
}

func (s *PostgresStore) EnsureKernelConfig(ctx context.Context, cfg model.KernelConfig) (*model.KernelConfig, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kernel_configs
		   (name, bandwidth_demand, bandwidth_supply, bandwidth_mrt, bandwidth_bus, beta_mrt, beta_bus, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (name) DO NOTHING`,
		cfg.Name, cfg.BandwidthDemand, cfg.BandwidthSupply, cfg.BandwidthMRT, cfg.BandwidthBus,
		cfg.BetaMRT, cfg.BetaBus, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure kernel config %s", cfg.Name)
	}
	return s.GetKernelConfig(ctx, cfg.Name)
}

func (s *PostgresStore) CreateScoreSnapshot(ctx context.Context, kernelConfigID int64, scores []model.ZoneScore) (*model.ScoreSnapshot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin score snapshot")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	var snapID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO score_snapshots (kernel_config_id, created_at) VALUES ($1, $2) RETURNING id`,
		kernelConfigID, now,
	).Scan(&snapID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert score snapshot")
	}

	rows := make([][]any, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, []any{snapID, sc.ZoneID, sc.ZDemand, sc.ZSupply, sc.ZAccess, sc.Composite, sc.Percentile})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"zone_scores"},
			[]string{"snapshot_id", "zone_id", "z_demand", "z_supply", "z_access", "composite", "percentile"},
			pgx.CopyFromRows(rows)); err != nil {
			return nil, eris.Wrap(err, "postgres: copy zone scores")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit score snapshot")
	}
	return &model.ScoreSnapshot{ID: snapID, KernelConfigID: kernelConfigID, CreatedAt: now}, nil
}

func (s *PostgresStore) LatestScores(ctx context.Context) (*model.ScoreSnapshot, []model.ZoneScore, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kernel_config_id, created_at FROM score_snapshots ORDER BY id DESC LIMIT 1`,
	)

	var snap model.ScoreSnapshot
	err := row.Scan(&snap.ID, &snap.KernelConfigID, &snap.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: latest score snapshot")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT snapshot_id, zone_id, z_demand, z_supply, z_access, composite, percentile
		 FROM zone_scores WHERE snapshot_id = $1 ORDER BY composite DESC, zone_id`,
		snap.ID,
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: latest zone scores")
	}
	defer rows.Close()

	var scores []model.ZoneScore
	for rows.Next() {
		var sc model.ZoneScore
		if err := rows.Scan(&sc.SnapshotID, &sc.ZoneID, &sc.ZDemand, &sc.ZSupply, &sc.ZAccess, &sc.Composite, &sc.Percentile); err != nil {
			return nil, nil, eris.Wrap(err, "postgres: scan zone score")
		}
		scores = append(scores, sc)
	}
	return &snap, scores, eris.Wrap(rows.Err(), "postgres: latest zone scores iterate")
}
