// Package ingest orchestrates the per-dataset pipelines: fetch, normalize,
// deduplicate, match or assign, upsert. Every run writes exactly one
// IngestionSnapshot, whatever the outcome.
package ingest

import (
	"context"

	"github.com/lionmetrics/zonescope/internal/fetcher"
	"github.com/lionmetrics/zonescope/internal/namenorm"
	"github.com/lionmetrics/zonescope/internal/store"
	"github.com/lionmetrics/zonescope/internal/zone"
)

// Kind distinguishes area-keyed datasets (matched by name) from point
// datasets (assigned by coordinates).
type Kind string

const (
	KindArea  Kind = "area"
	KindPoint Kind = "point"
)

// Deps bundles the collaborators a dataset pipeline needs.
type Deps struct {
	Store    store.Store
	Fetcher  fetcher.Fetcher
	Assigner *zone.Assigner
	Resolver *namenorm.Resolver

	// Workers bounds the record-level fan-out. Zero means serial.
	Workers int
}

// Dataset is one ingestable source. Run executes the full pipeline once to
// completion; there is no resumability.
type Dataset interface {
	Name() string
	Kind() Kind

	// SourceLabel is the configured origin recorded on the snapshot:
	// the remote URL, or "local" for a fallback file.
	SourceLabel() string

	Run(ctx context.Context, deps Deps) (*Result, error)
}
