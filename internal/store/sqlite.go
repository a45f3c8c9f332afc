package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lionmetrics/zonescope/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS zones (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	region     TEXT NOT NULL DEFAULT 'unknown',
	boundary   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS population (
	zone_id    TEXT PRIMARY KEY REFERENCES zones(id),
	year       INTEGER NOT NULL,
	total      INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS point_features (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	name             TEXT NOT NULL,
	lon              REAL NOT NULL,
	lat              REAL NOT NULL,
	zone_id          TEXT REFERENCES zones(id),
	capacity         REAL NOT NULL DEFAULT 0,
	line_count       INTEGER NOT NULL DEFAULT 0,
	frequency_weight REAL NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS unmatched_records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset    TEXT NOT NULL,
	source_key TEXT NOT NULL,
	raw_name   TEXT NOT NULL,
	reason     TEXT NOT NULL,
	payload    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ingestion_snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset     TEXT NOT NULL,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME,
	metadata    TEXT
);

CREATE TABLE IF NOT EXISTS kernel_configs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL UNIQUE,
	bandwidth_demand REAL NOT NULL,
	bandwidth_supply REAL NOT NULL,
	bandwidth_mrt    REAL NOT NULL,
	bandwidth_bus    REAL NOT NULL,
	beta_mrt         REAL NOT NULL,
	beta_bus         REAL NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS score_snapshots (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	kernel_config_id INTEGER NOT NULL REFERENCES kernel_configs(id),
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS zone_scores (
	snapshot_id INTEGER NOT NULL REFERENCES score_snapshots(id),
	zone_id     TEXT NOT NULL REFERENCES zones(id),
	z_demand    REAL NOT NULL,
	z_supply    REAL NOT NULL,
	z_access    REAL NOT NULL,
	composite   REAL NOT NULL,
	percentile  REAL NOT NULL,
	PRIMARY KEY (snapshot_id, zone_id)
);

CREATE INDEX IF NOT EXISTS idx_point_features_kind ON point_features(kind);
CREATE INDEX IF NOT EXISTS idx_point_features_zone ON point_features(zone_id);
CREATE INDEX IF NOT EXISTS idx_unmatched_dataset ON unmatched_records(dataset);
CREATE INDEX IF NOT EXISTS idx_snapshots_dataset ON ingestion_snapshots(dataset, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_zone_scores_zone ON zone_scores(zone_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertZones(ctx context.Context, zones []model.Zone) (int, error) {
	if len(zones) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert zones")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO zones (id, name, region, boundary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   region = excluded.region,
		   boundary = excluded.boundary,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert zone")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, z := range zones {
		var boundary any
		if len(z.Boundary) > 0 {
			boundary = string(z.Boundary)
		}
		if _, err := stmt.ExecContext(ctx, z.ID, z.Name, string(z.Region), boundary, now, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert zone %s", z.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert zones")
	}
	return len(zones), nil
}

func (s *SQLiteStore) ListZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, region, boundary, created_at, updated_at FROM zones ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list zones")
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		var region string
		var boundary sql.NullString
		if err := rows.Scan(&z.ID, &z.Name, &region, &boundary, &z.CreatedAt, &z.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone")
		}
		z.Region = model.Region(region)
		if boundary.Valid {
			z.Boundary = json.RawMessage(boundary.String)
		}
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "sqlite: list zones iterate")
}

func (s *SQLiteStore) UpsertPopulation(ctx context.Context, records []model.PopulationRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert population")
	}
	defer tx.Rollback() //nolint:errcheck

	// The WHERE clause on DO UPDATE keeps newer vintages from being
	// clobbered by a stale re-ingest.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO population (zone_id, year, total, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(zone_id) DO UPDATE SET
		   year = excluded.year,
		   total = excluded.total,
		   updated_at = excluded.updated_at
		 WHERE excluded.year >= population.year`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert population")
	}
	defer stmt.Close() //nolint:errcheck

	applied := 0
	now := time.Now().UTC()
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.ZoneID, r.Year, r.Total, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert population %s", r.ZoneID)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			applied++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert population")
	}
	return applied, nil
}

func (s *SQLiteStore) ListPopulation(ctx context.Context) ([]model.PopulationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT zone_id, year, total, updated_at FROM population ORDER BY zone_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list population")
	}
	defer rows.Close()

	var records []model.PopulationRecord
	for rows.Next() {
		var r model.PopulationRecord
		if err := rows.Scan(&r.ZoneID, &r.Year, &r.Total, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan population")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list population iterate")
}

func (s *SQLiteStore) UpsertPoints(ctx context.Context, points []model.PointFeature) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert points")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO point_features
		   (id, kind, name, lon, lat, zone_id, capacity, line_count, frequency_weight, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   kind = excluded.kind,
		   name = excluded.name,
		   lon = excluded.lon,
		   lat = excluded.lat,
		   zone_id = excluded.zone_id,
		   capacity = excluded.capacity,
		   line_count = excluded.line_count,
		   frequency_weight = excluded.frequency_weight,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert point")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, p := range points {
		var zoneID any
		if p.ZoneID != nil {
			zoneID = *p.ZoneID
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, string(p.Kind), p.Name, p.Lon, p.Lat, zoneID,
			p.Capacity, p.LineCount, p.FrequencyWeight, now, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert point %s", p.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert points")
	}
	return len(points), nil
}

func (s *SQLiteStore) ListPoints(ctx context.Context, kind model.PointKind) ([]model.PointFeature, error) {
	query := `SELECT id, kind, name, lon, lat, zone_id, capacity, line_count, frequency_weight, created_at, updated_at
	          FROM point_features`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list points")
	}
	defer rows.Close()

	var points []model.PointFeature
	for rows.Next() {
		var p model.PointFeature
		var pkind string
		var zoneID sql.NullString
		if err := rows.Scan(&p.ID, &pkind, &p.Name, &p.Lon, &p.Lat, &zoneID,
			&p.Capacity, &p.LineCount, &p.FrequencyWeight, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan point")
		}
		p.Kind = model.PointKind(pkind)
		if zoneID.Valid {
			z := zoneID.String
			p.ZoneID = &z
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: list points iterate")
}

func (s *SQLiteStore) RecordUnmatched(ctx context.Context, records []model.UnmatchedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record unmatched")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO unmatched_records (dataset, source_key, raw_name, reason, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare record unmatched")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range records {
		var payload any
		if len(r.Payload) > 0 {
			payload = string(r.Payload)
		}
		if _, err := stmt.ExecContext(ctx, r.Dataset, r.SourceKey, r.RawName, r.Reason, payload, now); err != nil {
			return eris.Wrap(err, "sqlite: insert unmatched")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit record unmatched")
}

func (s *SQLiteStore) ListUnmatched(ctx context.Context, dataset string, limit int) ([]model.UnmatchedRecord, error) {
	query := `SELECT id, dataset, source_key, raw_name, reason, payload, created_at FROM unmatched_records`
	var args []any
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unmatched")
	}
	defer rows.Close()

	var records []model.UnmatchedRecord
	for rows.Next() {
		var r model.UnmatchedRecord
		var payload sql.NullString
		if err := rows.Scan(&r.ID, &r.Dataset, &r.SourceKey, &r.RawName, &r.Reason, &payload, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unmatched")
		}
		if payload.Valid {
			r.Payload = json.RawMessage(payload.String)
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list unmatched iterate")
}

func (s *SQLiteStore) StartSnapshot(ctx context.Context, dataset, source string) (*model.IngestionSnapshot, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_snapshots (dataset, source, status, started_at) VALUES (?, ?, ?, ?)`,
		dataset, source, string(model.RunRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: start snapshot for %s", dataset)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot id")
	}
	return &model.IngestionSnapshot{
		ID:        id,
		Dataset:   dataset,
		Source:    source,
		Status:    model.RunRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishSnapshot(ctx context.Context, id int64, status model.RunStatus, metadata map[string]any) error {
	var metaJSON any
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal snapshot metadata")
		}
		metaJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_snapshots SET status = ?, finished_at = ?, metadata = ? WHERE id = ?`,
		string(status), time.Now().UTC(), metaJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish snapshot %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("snapshot not found: %d", id)
	}
	return nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.IngestionSnapshot, error) {
	query := `SELECT id, dataset, source, status, started_at, finished_at, metadata
	          FROM ingestion_snapshots WHERE 1=1`
	var args []any
	if filter.Dataset != "" {
		query += ` AND dataset = ?`
		args = append(args, filter.Dataset)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var snaps []model.IngestionSnapshot
	for rows.Next() {
		var snap model.IngestionSnapshot
		var status string
		var finished sql.NullTime
		var meta sql.NullString
		if err := rows.Scan(&snap.ID, &snap.Dataset, &snap.Source, &status, &snap.StartedAt, &finished, &meta); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		snap.Status = model.RunStatus(status)
		if finished.Valid {
			t := finished.Time
			snap.FinishedAt = &t
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &snap.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal snapshot metadata")
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}

func (s *SQLiteStore) GetKernelConfig(ctx context.Context, name string) (*model.KernelConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, bandwidth_demand, bandwidth_supply, bandwidth_mrt, bandwidth_bus, beta_mrt, beta_bus, created_at
		 FROM kernel_configs WHERE name = ?`,
		name,
	)

	var cfg model.KernelConfig
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.BandwidthDemand, &cfg.BandwidthSupply,
		&cfg.BandwidthMRT, &cfg.BandwidthBus, &cfg.BetaMRT, &cfg.BetaBus, &cfg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("kernel config not found: %s", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get kernel config")
	}
	return &cfg, nil
}

func (s *SQLiteStore) EnsureKernelConfig(ctx context.Context, cfg model.KernelConfig) (*model.KernelConfig, error) {
	// Existing configs win: snapshots reference them, so re-running with
	// different defaults must not rewrite history.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kernel_configs
		   (name, bandwidth_demand, bandwidth_supply, bandwidth_mrt, bandwidth_bus, beta_mrt, beta_bus, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		cfg.Name, cfg.BandwidthDemand, cfg.BandwidthSupply, cfg.BandwidthMRT, cfg.BandwidthBus,
		cfg.BetaMRT, cfg.BetaBus, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure kernel config %s", cfg.Name)
	}
	return s.GetKernelConfig(ctx, cfg.Name)
}

func (s *SQLiteStore) CreateScoreSnapshot(ctx context.Context, kernelConfigID int64, scores []model.ZoneScore) (*model.ScoreSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin score snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO score_snapshots (kernel_config_id, created_at) VALUES (?, ?)`,
		kernelConfigID, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert score snapshot")
	}
	snapID, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: score snapshot id")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO zone_scores (snapshot_id, zone_id, z_demand, z_supply, z_access, composite, percentile)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert zone score")
	}
	defer stmt.Close() //nolint:errcheck

	for _, sc := range scores {
		if _, err := stmt.ExecContext(ctx, snapID, sc.ZoneID, sc.ZDemand, sc.ZSupply, sc.ZAccess, sc.Composite, sc.Percentile); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert zone score %s", sc.ZoneID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit score snapshot")
	}
	return &model.ScoreSnapshot{ID: snapID, KernelConfigID: kernelConfigID, CreatedAt: now}, nil
}

func (s *SQLiteStore) LatestScores(ctx context.Context) (*model.ScoreSnapshot, []model.ZoneScore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kernel_config_id, created_at FROM score_snapshots ORDER BY id DESC LIMIT 1`,
	)

	var snap model.ScoreSnapshot
	err := row.Scan(&snap.ID, &snap.KernelConfigID, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: latest score snapshot")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_id, zone_id, z_demand, z_supply, z_access, composite, percentile
		 FROM zone_scores WHERE snapshot_id = ? ORDER BY composite DESC, zone_id`,
		snap.ID,
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: latest zone scores")
	}
	defer rows.Close()

	var scores []model.ZoneScore
	for rows.Next() {
		var sc model.ZoneScore
		if err := rows.Scan(&sc.SnapshotID, &sc.ZoneID, &sc.ZDemand, &sc.ZSupply, &sc.ZAccess, &sc.Composite, &sc.Percentile); err != nil {
			return nil, nil, eris.Wrap(err, "sqlite: scan zone score")
		}
		scores = append(scores, sc)
	}
	return &snap, scores, eris.Wrap(rows.Err(), "sqlite: latest zone scores iterate")
}
