package query

import (
	"testing"
	"time"
)

func TestHeuristicEstimate(t *testing.T) {
	est := heuristicEstimator{}

	tests := []struct {
		name    string
		opts    Options
		indexed []string
		want    float64
	}{
		{"bare scan", Options{}, nil, 1000},
		{"one indexed filter", Options{}, []string{"timestamp"}, 800},
		{"two indexed filters", Options{}, []string{"timestamp", "sessionId"}, 600},
		{"sort penalty", Options{Sort: []SortSpec{{Field: "date"}}}, nil, 1100},
		{"limit caps cost", Options{Limit: 5}, nil, 50},
		{"limit above cost leaves it", Options{Limit: 500}, nil, 1000},
		{"floor", Options{Limit: 1}, []string{"a", "b", "c", "d", "e"}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := est.Estimate(nil, tt.opts, tt.indexed); got != tt.want {
				t.Errorf("Estimate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatsTrackerTotals(t *testing.T) {
	tr := newStatsTracker(100)

	tr.record(execRecord{signature: "q1", elapsed: 10 * time.Millisecond}, []string{"timestamp"})
	tr.record(execRecord{signature: "q1", elapsed: 30 * time.Millisecond, fromCache: true}, []string{"timestamp"})
	tr.record(execRecord{signature: "q2", elapsed: 2 * time.Second}, nil)

	s := tr.snapshot(time.Second)
	if s.TotalQueries != 3 {
		t.Errorf("TotalQueries = %d, want 3", s.TotalQueries)
	}
	if s.SlowQueries != 1 {
		t.Errorf("SlowQueries = %d, want 1", s.SlowQueries)
	}
	if s.CacheHitRatio <= 0.3 || s.CacheHitRatio >= 0.34 {
		t.Errorf("CacheHitRatio = %v, want ~1/3", s.CacheHitRatio)
	}
	if s.IndexUtilization["timestamp"] != 2 {
		t.Errorf("IndexUtilization[timestamp] = %d, want 2", s.IndexUtilization["timestamp"])
	}
}

func TestStatsHistoryBounded(t *testing.T) {
	tr := newStatsTracker(5)
	for i := 0; i < 20; i++ {
		tr.record(execRecord{signature: "q", elapsed: 2 * time.Second}, nil)
	}

	s := tr.snapshot(time.Second)
	// Slow-query counting scans the bounded history, not all records.
	if s.SlowQueries != 5 {
		t.Errorf("SlowQueries = %d, want history limit 5", s.SlowQueries)
	}
	if s.TotalQueries != 20 {
		t.Errorf("TotalQueries = %d, want 20 (running totals are unbounded)", s.TotalQueries)
	}
}

func TestSuggestionsSlowQuery(t *testing.T) {
	tr := newStatsTracker(100)
	tr.record(execRecord{signature: "slow", elapsed: 2 * time.Second}, nil)
	tr.record(execRecord{signature: "fast", elapsed: time.Millisecond}, nil)

	sugs := tr.suggestions(500*time.Millisecond, 1000, nil)
	if len(sugs) != 1 {
		t.Fatalf("got %d suggestions, want 1: %+v", len(sugs), sugs)
	}
	if sugs[0].Kind != "slow-query" || sugs[0].Target != "slow" {
		t.Errorf("suggestion = %+v", sugs[0])
	}
}

func TestSuggestionsHighVolumeIndexes(t *testing.T) {
	tr := newStatsTracker(100)
	for i := 0; i < 150; i++ {
		tr.record(execRecord{signature: "q", elapsed: time.Millisecond}, nil)
	}

	sugs := tr.suggestions(500*time.Millisecond, 100, nil)
	targets := map[string]bool{}
	for _, s := range sugs {
		if s.Kind == "index" {
			targets[s.Target] = true
		}
	}
	if !targets["timestamp"] || !targets["sessionId"] {
		t.Errorf("expected timestamp and sessionId index proposals, got %+v", sugs)
	}

	// Existing indexes are not re-proposed.
	indexed := map[string]IndexSpec{"timestamp": {Field: "timestamp"}}
	sugs = tr.suggestions(500*time.Millisecond, 100, indexed)
	for _, s := range sugs {
		if s.Kind == "index" && s.Target == "timestamp" {
			t.Error("proposed an index that already exists")
		}
	}
}
