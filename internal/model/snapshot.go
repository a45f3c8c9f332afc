package model

import "time"

// RunStatus is the final status of one ingestion run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// IngestionSnapshot is one immutable record per pipeline run: the ordered
// history of snapshots is the audit trail for data-quality regressions.
type IngestionSnapshot struct {
	ID         int64          `json:"id"`
	Dataset    string         `json:"dataset"`
	Source     string         `json:"source"` // fetched URL, or "local"
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// KernelConfig is a named set of scoring parameters. Immutable once a
// ScoreSnapshot references it.
type KernelConfig struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	BandwidthDemand float64   `json:"bandwidth_demand"` // meters
	BandwidthSupply float64   `json:"bandwidth_supply"`
	BandwidthMRT    float64   `json:"bandwidth_mrt"`
	BandwidthBus    float64   `json:"bandwidth_bus"`
	BetaMRT         float64   `json:"beta_mrt"`
	BetaBus         float64   `json:"beta_bus"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScoreSnapshot owns the ZoneScore rows produced by one scoring run.
// A new run always creates a new snapshot; prior snapshots are never
// mutated, so historical scores stay reproducible.
type ScoreSnapshot struct {
	ID             int64     `json:"id"`
	KernelConfigID int64     `json:"kernel_config_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ZoneScore holds the normalized components and composite for one zone in
// one snapshot.
type ZoneScore struct {
	SnapshotID int64   `json:"snapshot_id"`
	ZoneID     string  `json:"zone_id"`
	ZDemand    float64 `json:"z_demand"`
	ZSupply    float64 `json:"z_supply"`
	ZAccess    float64 `json:"z_access"`
	Composite  float64 `json:"composite"`
	Percentile float64 `json:"percentile"`
}
