package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	return NewServer(st), st
}

func seedScores(t *testing.T, st store.Store, composites []float64) {
	t.Helper()
	ctx := context.Background()

	zones := make([]model.Zone, len(composites))
	scores := make([]model.ZoneScore, len(composites))
	for i, c := range composites {
		id := fmt.Sprintf("SZ-%02d", i)
		zones[i] = model.Zone{ID: id, Name: "Zone " + id, Region: model.RegionCentral}
		scores[i] = model.ZoneScore{ZoneID: id, Composite: c, Percentile: 50}
	}
	_, err := st.UpsertZones(ctx, zones)
	require.NoError(t, err)

	kc, err := st.EnsureKernelConfig(ctx, model.KernelConfig{
		Name:            "default",
		BandwidthDemand: 1500,
		BandwidthSupply: 800,
		BandwidthMRT:    1000,
		BandwidthBus:    400,
		BetaMRT:         0.7,
		BetaBus:         0.3,
	})
	require.NoError(t, err)

	_, err = st.CreateScoreSnapshot(ctx, kc.ID, scores)
	require.NoError(t, err)
}

func doGet(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(t, srv.Routes(nil), "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestZones(t *testing.T) {
	srv, st := newTestServer(t)
	_, err := st.UpsertZones(context.Background(), []model.Zone{
		{ID: "SZ-A", Name: "Alpha Park", Region: model.RegionCentral},
		{ID: "SZ-B", Name: "Beta Harbour", Region: model.RegionEast},
	})
	require.NoError(t, err)

	rec := doGet(t, srv.Routes(nil), "/zones", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var zones []model.Zone
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zones))
	require.Len(t, zones, 2)
	assert.Equal(t, "SZ-A", zones[0].ID)
	assert.Equal(t, model.RegionEast, zones[1].Region)
}

func TestSnapshotsFilter(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	for _, tc := range []struct {
		dataset string
		status  model.RunStatus
	}{
		{"zones", model.RunSuccess},
		{"hawkers", model.RunPartial},
		{"hawkers", model.RunFailed},
	} {
		snap, err := st.StartSnapshot(ctx, tc.dataset, "local")
		require.NoError(t, err)
		require.NoError(t, st.FinishSnapshot(ctx, snap.ID, tc.status, nil))
	}

	h := srv.Routes(nil)

	rec := doGet(t, h, "/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []model.IngestionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	assert.Len(t, snaps, 3)

	rec = doGet(t, h, "/snapshots?dataset=hawkers&status=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snaps = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "hawkers", snaps[0].Dataset)
	assert.Equal(t, model.RunFailed, snaps[0].Status)

	rec = doGet(t, h, "/snapshots?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestScores(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes(nil)

	rec := doGet(t, h, "/scores/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	seedScores(t, st, []float64{0.4, 1.2, -0.3})

	rec = doGet(t, h, "/scores/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Snapshot model.ScoreSnapshot `json:"snapshot"`
		Scores   []model.ZoneScore   `json:"scores"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotZero(t, body.Snapshot.ID)
	require.Len(t, body.Scores, 3)
	// Ordered by composite descending.
	assert.InDelta(t, 1.2, body.Scores[0].Composite, 1e-9)
}

func TestUnmatched(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, st.RecordUnmatched(context.Background(), []model.UnmatchedRecord{
		{Dataset: "population", SourceKey: "NOWHERE MEADOW", RawName: "Nowhere Meadow", Reason: "no match"},
	}))

	h := srv.Routes(nil)

	rec := doGet(t, h, "/unmatched?dataset=population", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []model.UnmatchedRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Nowhere Meadow", records[0].RawName)

	rec = doGet(t, h, "/unmatched?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBreaks(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes(nil)

	rec := doGet(t, h, "/breaks?k=4", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	seedScores(t, st, []float64{0.8, -0.5, 1.6, 0.1, 2.2, -1.1, 0.4, 1.0})

	rec = doGet(t, h, "/breaks?k=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		K      int       `json:"k"`
		Breaks []float64 `json:"breaks"`
		Token  string    `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.K)
	// Sorted composites: -1.1 -0.5 0.1 0.4 0.8 1.0 1.6 2.2; quartile
	// breakpoints land at indices 1, 3, 5.
	require.Len(t, body.Breaks, 3)
	assert.InDelta(t, -0.5, body.Breaks[0], 1e-9)
	assert.InDelta(t, 0.4, body.Breaks[1], 1e-9)
	assert.InDelta(t, 1.0, body.Breaks[2], 1e-9)
	assert.NotEmpty(t, body.Token)

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = doGet(t, h, "/breaks?k=4", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = doGet(t, h, "/breaks?k=4", map[string]string{"If-None-Match": `"stale"`})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBreaksValidation(t *testing.T) {
	srv, st := newTestServer(t)
	seedScores(t, st, []float64{0.1, 0.2, 0.3})
	h := srv.Routes(nil)

	for _, k := range []string{"1", "11", "abc", "-2"} {
		rec := doGet(t, h, "/breaks?k="+k, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "k=%s", k)
	}

	// Default bucket count applies when k is omitted.
	rec := doGet(t, h, "/breaks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		K int `json:"k"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, defaultBuckets, body.K)
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes([]string{"https://dashboard.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
