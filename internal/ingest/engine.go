package ingest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lionmetrics/zonescope/internal/model"
)

// Engine runs dataset pipelines. Pipelines for distinct datasets are
// independent and run concurrently; a failure in one never touches the
// others or previously committed snapshots.
type Engine struct {
	deps        Deps
	concurrency int
}

// NewEngine creates an ingestion engine. concurrency bounds how many
// dataset pipelines run at once.
func NewEngine(deps Deps, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{deps: deps, concurrency: concurrency}
}

// Run executes every dataset and records one snapshot per dataset. The
// returned error names the datasets whose runs failed outright; partial
// runs are not errors.
func (e *Engine) Run(ctx context.Context, datasets []Dataset) error {
	runID := uuid.New().String()
	log := zap.L().With(zap.String("component", "ingest.engine"), zap.String("run_id", runID))
	log.Info("starting ingestion", zap.Int("datasets", len(datasets)))

	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, ds := range datasets {
		ds := ds
		g.Go(func() error {
			if err := e.runOne(gctx, runID, ds); err != nil {
				mu.Lock()
				failed = append(failed, ds.Name())
				mu.Unlock()
				zap.L().Error("dataset ingestion failed",
					zap.String("dataset", ds.Name()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return eris.Errorf("ingest: datasets failed: %s", strings.Join(failed, ", "))
	}
	log.Info("ingestion complete")
	return nil
}

// runOne executes a single dataset pipeline with snapshot bookkeeping.
func (e *Engine) runOne(ctx context.Context, runID string, ds Dataset) error {
	log := zap.L().With(
		zap.String("component", "ingest.engine"),
		zap.String("run_id", runID),
		zap.String("dataset", ds.Name()),
	)

	snap, err := e.deps.Store.StartSnapshot(ctx, ds.Name(), ds.SourceLabel())
	if err != nil {
		return eris.Wrapf(err, "ingest: start snapshot for %s", ds.Name())
	}

	start := time.Now()
	result, runErr := ds.Run(ctx, e.deps)
	elapsed := time.Since(start)

	if runErr != nil {
		// Hard failure: no partial writes happened, record the reason.
		meta := map[string]any{"error": runErr.Error(), "elapsed_ms": elapsed.Milliseconds()}
		if err := e.deps.Store.FinishSnapshot(ctx, snap.ID, model.RunFailed, meta); err != nil {
			log.Error("failed to record failed snapshot", zap.Error(err))
		}
		return runErr
	}

	result.Elapsed = elapsed
	status := result.Status()
	if err := e.deps.Store.FinishSnapshot(ctx, snap.ID, status, result.Metadata()); err != nil {
		log.Error("failed to record snapshot", zap.Error(err))
	}

	log.Info("dataset ingested",
		zap.String("status", string(status)),
		zap.Int("fetched", result.Fetched),
		zap.Int("matched", result.Matched),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("invalid", result.Invalid),
		zap.Int("upserted", result.Upserted),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
