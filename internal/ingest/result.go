package ingest

import (
	"time"

	"github.com/lionmetrics/zonescope/internal/model"
)

// Thresholds for status derivation. A run with any skipped rows is at best
// partial; same for a match rate under half.
const (
	minMatchRate       = 0.5
	unmatchedSampleMax = 20
)

// Result holds the per-stage counters for one pipeline run. The counters
// feed the snapshot metadata, which is the audit trail for diagnosing
// data-quality regressions between runs.
type Result struct {
	Source string // resolved origin, may differ from the configured one

	Fetched   int // raw records decoded from the source
	Invalid   int // malformed rows skipped during normalize
	Deduped   int // duplicate rows merged away
	Matched   int // rows matched to a zone (or assigned one)
	Unmatched int // rows with no zone match/assignment
	Upserted  int // rows written

	CRS             map[string]int // classification breakdown by source CRS
	UnmatchedSample []string       // bounded sample of unmatched names

	Elapsed time.Duration
}

// NewResult creates an empty result for the given resolved source.
func NewResult(source string) *Result {
	return &Result{Source: source, CRS: make(map[string]int)}
}

// CountCRS records one row's detected coordinate system.
func (r *Result) CountCRS(system string) {
	r.CRS[system]++
}

// AddUnmatched counts an unmatched row and keeps its name if the sample
// still has room.
func (r *Result) AddUnmatched(name string) {
	r.Unmatched++
	if len(r.UnmatchedSample) < unmatchedSampleMax {
		r.UnmatchedSample = append(r.UnmatchedSample, name)
	}
}

// MatchRate is the fraction of match-eligible rows that found a zone.
func (r *Result) MatchRate() float64 {
	total := r.Matched + r.Unmatched
	if total == 0 {
		return 0
	}
	return float64(r.Matched) / float64(total)
}

// Status derives the final run status: failed when nothing was processed,
// partial when rows were skipped or the match rate fell under the
// threshold, success otherwise.
func (r *Result) Status() model.RunStatus {
	if r.Fetched == 0 || r.Matched+r.Unmatched == 0 {
		return model.RunFailed
	}
	if r.Invalid > 0 || r.MatchRate() < minMatchRate {
		return model.RunPartial
	}
	return model.RunSuccess
}

// Metadata renders the counters for snapshot storage.
func (r *Result) Metadata() map[string]any {
	m := map[string]any{
		"source":     r.Source,
		"fetched":    r.Fetched,
		"invalid":    r.Invalid,
		"deduped":    r.Deduped,
		"matched":    r.Matched,
		"unmatched":  r.Unmatched,
		"upserted":   r.Upserted,
		"elapsed_ms": r.Elapsed.Milliseconds(),
	}
	if len(r.CRS) > 0 {
		m["crs"] = r.CRS
	}
	if len(r.UnmatchedSample) > 0 {
		m["unmatched_sample"] = r.UnmatchedSample
	}
	return m
}

// Merge folds a per-worker accumulator into r. Counter updates never
// interleave: workers fill their own Result and the stage merges them once
// at the end.
func (r *Result) Merge(other *Result) {
	r.Fetched += other.Fetched
	r.Invalid += other.Invalid
	r.Deduped += other.Deduped
	r.Matched += other.Matched
	r.Upserted += other.Upserted
	for k, v := range other.CRS {
		r.CRS[k] += v
	}
	r.Unmatched += other.Unmatched
	for _, name := range other.UnmatchedSample {
		if len(r.UnmatchedSample) < unmatchedSampleMax {
			r.UnmatchedSample = append(r.UnmatchedSample, name)
		}
	}
}
