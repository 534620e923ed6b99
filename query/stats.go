package query

import (
	"fmt"
	"sort"
	"time"
)

// execRecord is one query execution observation.
type execRecord struct {
	signature string
	elapsed   time.Duration
	scanned   int
	returned  int
	seeks     int
	fromCache bool
	at        time.Time
}

// statsTracker accumulates execution telemetry: a bounded history of
// recent executions plus per-signature running totals for slow-query
// detection.
type statsTracker struct {
	history      []execRecord
	historyLimit int

	perQuery map[string]*queryTotals

	cacheHits   int64
	cacheMisses int64

	seeksByField map[string]int64
}

type queryTotals struct {
	count   int64
	totalMs int64
}

func newStatsTracker(historyLimit int) *statsTracker {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &statsTracker{
		historyLimit: historyLimit,
		perQuery:     make(map[string]*queryTotals),
		seeksByField: make(map[string]int64),
	}
}

func (t *statsTracker) record(rec execRecord, indexedFields []string) {
	t.history = append(t.history, rec)
	if len(t.history) > t.historyLimit {
		t.history = t.history[len(t.history)-t.historyLimit:]
	}

	totals := t.perQuery[rec.signature]
	if totals == nil {
		totals = &queryTotals{}
		t.perQuery[rec.signature] = totals
	}
	totals.count++
	totals.totalMs += rec.elapsed.Milliseconds()

	if rec.fromCache {
		t.cacheHits++
	} else {
		t.cacheMisses++
	}

	for _, field := range indexedFields {
		t.seeksByField[field]++
	}
}

// Stats summarizes all recorded executions.
type Stats struct {
	TotalQueries       int64            `json:"totalQueries"`
	AvgExecutionTimeMs float64          `json:"avgExecutionTimeMs"`
	CacheHitRatio      float64          `json:"cacheHitRatio"`
	SlowQueries        int              `json:"slowQueries"`
	IndexUtilization   map[string]int64 `json:"indexUtilization"`
	CacheSize          int              `json:"cacheSize"`
	IndexCount         int              `json:"indexCount"`
}

func (t *statsTracker) snapshot(slowThreshold time.Duration) Stats {
	s := Stats{
		IndexUtilization: make(map[string]int64, len(t.seeksByField)),
	}

	var totalMs int64
	for _, totals := range t.perQuery {
		s.TotalQueries += totals.count
		totalMs += totals.totalMs
	}
	if s.TotalQueries > 0 {
		s.AvgExecutionTimeMs = float64(totalMs) / float64(s.TotalQueries)
	}

	if hits, misses := t.cacheHits, t.cacheMisses; hits+misses > 0 {
		s.CacheHitRatio = float64(hits) / float64(hits+misses)
	}

	for _, rec := range t.history {
		if rec.elapsed > slowThreshold {
			s.SlowQueries++
		}
	}

	for field, seeks := range t.seeksByField {
		s.IndexUtilization[field] = seeks
	}

	return s
}

// Suggestion is one optimize() recommendation.
type Suggestion struct {
	Kind   string `json:"kind"` // slow-query or index
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// suggestions flags query signatures whose average execution time exceeds
// the slow threshold, and proposes the standard timestamp/sessionId
// indexes once total query volume is high enough. The index proposals are
// a static heuristic, not derived from access-pattern analysis.
func (t *statsTracker) suggestions(slowAvg time.Duration, volumeThreshold int64, indexed map[string]IndexSpec) []Suggestion {
	var out []Suggestion

	sigs := make([]string, 0, len(t.perQuery))
	for sig := range t.perQuery {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)

	var total int64
	for _, sig := range sigs {
		totals := t.perQuery[sig]
		total += totals.count

		avgMs := float64(totals.totalMs) / float64(totals.count)
		if avgMs > float64(slowAvg.Milliseconds()) {
			out = append(out, Suggestion{
				Kind:   "slow-query",
				Target: sig,
				Reason: fmt.Sprintf("average execution time %.0fms over %d runs; consider narrowing the time range or adding an index on its filter fields", avgMs, totals.count),
			})
		}
	}

	if total > volumeThreshold {
		if _, ok := indexed["timestamp"]; !ok {
			out = append(out, Suggestion{
				Kind:   "index",
				Target: "timestamp",
				Reason: "high query volume; a btree index on timestamp lowers estimated scan cost",
			})
		}
		if _, ok := indexed["sessionId"]; !ok {
			out = append(out, Suggestion{
				Kind:   "index",
				Target: "sessionId",
				Reason: "high query volume; a sparse hash index on sessionId lowers estimated scan cost",
			})
		}
	}

	return out
}
