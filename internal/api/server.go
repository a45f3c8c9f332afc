// Package api exposes the read-only HTTP surface: zones, ingestion run
// history, latest scores, the unmatched audit trail, and choropleth breaks.
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/quantile"
	"github.com/lionmetrics/zonescope/internal/store"
)

const (
	defaultBuckets       = 5
	defaultSnapshotLimit = 50
	defaultAuditLimit    = 100
)

// Server serves the read-only API over a Store.
type Server struct {
	store  store.Store
	breaks *quantile.BreaksCache
}

// NewServer creates a Server with a fresh breaks cache.
func NewServer(st store.Store) *Server {
	return &Server{
		store:  st,
		breaks: quantile.NewBreaksCache(quantile.DefaultTTL),
	}
}

// Routes builds the router. origins configures CORS for browser dashboards.
func (s *Server) Routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/zones", s.handleZones)
	r.Get("/snapshots", s.handleSnapshots)
	r.Get("/scores/latest", s.handleLatestScores)
	r.Get("/unmatched", s.handleUnmatched)
	r.Get("/breaks", s.handleBreaks)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.store.ListZones(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	filter := store.SnapshotFilter{
		Dataset: r.URL.Query().Get("dataset"),
		Status:  model.RunStatus(r.URL.Query().Get("status")),
		Limit:   defaultSnapshotLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}

	snaps, err := s.store.ListSnapshots(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleLatestScores(w http.ResponseWriter, r *http.Request) {
	snap, scores, err := s.store.LatestScores(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, eris.New("no score snapshot exists yet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snap,
		"scores":   scores,
	})
}

func (s *Server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	records, err := s.store.ListUnmatched(r.Context(), r.URL.Query().Get("dataset"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleBreaks computes k-bucket quantile breaks over the latest composite
// scores. The response carries an ETag derived from the break values so
// unchanged maps can be answered with 304 Not Modified.
func (s *Server) handleBreaks(w http.ResponseWriter, r *http.Request) {
	k := defaultBuckets
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid bucket count %q", raw))
			return
		}
		k = n
	}
	if k < quantile.MinBuckets || k > quantile.MaxBuckets {
		writeError(w, http.StatusBadRequest,
			eris.Errorf("bucket count %d out of range [%d, %d]", k, quantile.MinBuckets, quantile.MaxBuckets))
		return
	}

	entry, err := s.breaks.Get(k, func() ([]float64, error) {
		snap, scores, err := s.store.LatestScores(r.Context())
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, errNoScores
		}
		values := make([]float64, len(scores))
		for i, sc := range scores {
			values[i] = sc.Composite
		}
		sort.Float64s(values)
		return values, nil
	})
	if err != nil {
		if eris.Is(err, errNoScores) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	etag := `"` + entry.Token + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"k":      k,
		"breaks": entry.Breaks,
		"token":  entry.Token,
	})
}

var errNoScores = eris.New("no score snapshot exists yet")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
