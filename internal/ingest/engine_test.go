package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/store"
)

// fakeDataset lets engine tests control the pipeline outcome.
type fakeDataset struct {
	name   string
	result *Result
	err    error
}

func (d *fakeDataset) Name() string        { return d.name }
func (d *fakeDataset) Kind() Kind          { return KindPoint }
func (d *fakeDataset) SourceLabel() string { return "local" }

func (d *fakeDataset) Run(context.Context, Deps) (*Result, error) {
	return d.result, d.err
}

func okResult() *Result {
	r := NewResult("local")
	r.Fetched = 10
	r.Matched = 10
	r.Upserted = 10
	return r
}

func TestEngine_RecordsSnapshotPerDataset(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()

	engine := NewEngine(deps, 2)
	err := engine.Run(ctx, []Dataset{
		&fakeDataset{name: "hawkers", result: okResult()},
		&fakeDataset{name: "bus_stops", result: okResult()},
	})
	require.NoError(t, err)

	snaps, err := deps.Store.ListSnapshots(ctx, store.SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	for _, snap := range snaps {
		assert.Equal(t, model.RunSuccess, snap.Status)
		require.NotNil(t, snap.FinishedAt)
		assert.Equal(t, float64(10), snap.Metadata["fetched"])
	}
}

func TestEngine_FailedDatasetDoesNotAffectOthers(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()

	engine := NewEngine(deps, 2)
	err := engine.Run(ctx, []Dataset{
		&fakeDataset{name: "hawkers", result: okResult()},
		&fakeDataset{name: "mrt_exits", err: eris.New("both sources unavailable")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mrt_exits")
	assert.NotContains(t, err.Error(), "hawkers")

	snaps, err := deps.Store.ListSnapshots(ctx, store.SnapshotFilter{Dataset: "mrt_exits"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, model.RunFailed, snaps[0].Status)
	assert.Contains(t, snaps[0].Metadata["error"], "both sources unavailable")

	ok, err := deps.Store.ListSnapshots(ctx, store.SnapshotFilter{Dataset: "hawkers"})
	require.NoError(t, err)
	require.Len(t, ok, 1)
	assert.Equal(t, model.RunSuccess, ok[0].Status)
}

func TestEngine_PartialStatusFlowsThrough(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()

	partial := NewResult("local")
	partial.Fetched = 10
	partial.Invalid = 2
	partial.Matched = 8

	engine := NewEngine(deps, 1)
	err := engine.Run(ctx, []Dataset{&fakeDataset{name: "hawkers", result: partial}})
	require.NoError(t, err)

	snaps, err := deps.Store.ListSnapshots(ctx, store.SnapshotFilter{Status: model.RunPartial})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "hawkers", snaps[0].Dataset)
}

func TestEngine_FullRunAgainstFixtures(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()

	// Boundaries first: point datasets need the assigner cache loaded.
	ingestZones(t, deps)

	engine := NewEngine(deps, 2)
	err := engine.Run(ctx, []Dataset{
		&Hawkers{Src: Source{FallbackPath: filepath.Join("testdata", "hawkers.json")}},
	})
	require.NoError(t, err)

	snaps, err := deps.Store.ListSnapshots(ctx, store.SnapshotFilter{Dataset: "hawkers"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, model.RunPartial, snaps[0].Status)
	assert.Equal(t, "local", snaps[0].Source)
	assert.NotEmpty(t, snaps[0].Metadata["unmatched_sample"])
}

func TestFanOut_MergesWorkerAccumulators(t *testing.T) {
	records := make([]Record, 100)
	for i := range records {
		records[i] = Record{"i": float64(i)}
	}

	rows, res := fanOut(records, 8, func(rec Record, res *Result) (int, bool) {
		v, _ := ExtractFloat(rec, "i")
		if int(v)%10 == 0 {
			res.Invalid++
			return 0, false
		}
		res.Matched++
		return int(v), true
	})

	assert.Len(t, rows, 90)
	assert.Equal(t, 10, res.Invalid)
	assert.Equal(t, 90, res.Matched)
}

func TestFanOut_SerialWhenNoWorkers(t *testing.T) {
	records := []Record{{"a": 1.0}, {"a": 2.0}}
	rows, res := fanOut(records, 0, func(rec Record, _ *Result) (float64, bool) {
		v, _ := ExtractFloat(rec, "a")
		return v, true
	})
	assert.Equal(t, []float64{1, 2}, rows)
	assert.Equal(t, 0, res.Invalid)
}

func TestFanOut_Empty(t *testing.T) {
	rows, res := fanOut(nil, 4, func(Record, *Result) (int, bool) { return 0, true })
	assert.Empty(t, rows)
	assert.Equal(t, 0, res.Fetched)
}
