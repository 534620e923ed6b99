package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/quellen/usagevault/query"
	"github.com/quellen/usagevault/types"
)

func samplePoints(t0 time.Time, counts ...int) []types.UsageDataPoint {
	points := make([]types.UsageDataPoint, len(counts))
	for i, c := range counts {
		points[i] = types.UsageDataPoint{
			Timestamp:    t0.Add(time.Duration(i) * time.Minute).UnixMilli(),
			RequestCount: c,
			Features:     []string{"chat"},
		}
	}
	return points
}

func TestAggregateWindowing(t *testing.T) {
	e := New()
	ctx := context.Background()

	hour := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)
	points := samplePoints(hour.Add(5*time.Minute), 10, 20, 30)
	points = append(points, samplePoints(hour.Add(65*time.Minute), 100)...)

	results, err := e.Aggregate(ctx, points, query.AggregationConfig{
		Window: types.WindowHour,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d windows, want 2", len(results))
	}

	first := results[0]
	if first.WindowStart != hour.UnixMilli() {
		t.Errorf("WindowStart = %d, want %d", first.WindowStart, hour.UnixMilli())
	}
	if first.Count != 3 || first.Sum != 60 || first.Mean != 20 {
		t.Errorf("first window stats = count %d sum %v mean %v", first.Count, first.Sum, first.Mean)
	}
	if first.Min != 10 || first.Max != 30 {
		t.Errorf("first window extremes = %v..%v", first.Min, first.Max)
	}

	second := results[1]
	if second.Count != 1 || second.Mean != 100 {
		t.Errorf("second window stats = %+v", second)
	}
	if second.WindowStart <= first.WindowStart {
		t.Error("windows not sorted by start")
	}
}

func TestAggregatePercentiles(t *testing.T) {
	e := New()
	ctx := context.Background()

	t0 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	counts := make([]int, 100)
	for i := range counts {
		counts[i] = i + 1
	}

	results, err := e.Aggregate(ctx, samplePoints(t0, counts...), query.AggregationConfig{
		Window:           types.WindowDay,
		PercentileLevels: []int{25, 50, 75, 90, 95, 99},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d windows, want 1", len(results))
	}

	p := results[0].Percentiles
	if len(p) != 6 {
		t.Fatalf("got %d percentiles: %v", len(p), p)
	}
	// DDSketch guarantees 1% relative accuracy; allow a loose band.
	if p[50] < 45 || p[50] > 55 {
		t.Errorf("p50 = %v, want ~50", p[50])
	}
	if p[99] < 94 || p[99] > 100 {
		t.Errorf("p99 = %v, want ~99", p[99])
	}
	// Percentiles are non-decreasing in level.
	levels := []int{25, 50, 75, 90, 95, 99}
	for i := 1; i < len(levels); i++ {
		if p[levels[i]] < p[levels[i-1]] {
			t.Errorf("p%d (%v) < p%d (%v)", levels[i], p[levels[i]], levels[i-1], p[levels[i-1]])
		}
	}
}

func TestAggregateConfidenceInterval(t *testing.T) {
	e := New()
	ctx := context.Background()

	t0 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	results, err := e.Aggregate(ctx, samplePoints(t0, 10, 20, 30, 40, 50), query.AggregationConfig{
		Window:           types.WindowDay,
		PercentileLevels: []int{50},
		ConfidenceLevel:  0.95,
	})
	if err != nil {
		t.Fatal(err)
	}

	r := results[0]
	if r.ConfidenceLow > r.Mean || r.ConfidenceHigh < r.Mean {
		t.Errorf("interval [%v, %v] does not bracket mean %v", r.ConfidenceLow, r.ConfidenceHigh, r.Mean)
	}
	if r.ConfidenceLow == r.ConfidenceHigh {
		t.Error("degenerate confidence interval for spread data")
	}
}

func TestAggregateFeatureTracking(t *testing.T) {
	e := New()
	ctx := context.Background()

	t0 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	points := []types.UsageDataPoint{
		{Timestamp: t0.UnixMilli(), RequestCount: 1, Features: []string{"chat", "search"}},
		{Timestamp: t0.Add(time.Minute).UnixMilli(), RequestCount: 2, Features: []string{"chat"}},
	}

	results, err := e.Aggregate(ctx, points, query.AggregationConfig{
		Window:        types.WindowDay,
		TrackFeatures: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	features := results[0].Features
	if len(features) != 2 || features[0] != "chat" || features[1] != "search" {
		t.Errorf("features = %v, want sorted de-duplicated [chat search]", features)
	}
}

func TestAggregateTimePatterns(t *testing.T) {
	e := New()
	ctx := context.Background()

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	points := []types.UsageDataPoint{
		{Timestamp: day.Add(9 * time.Hour).UnixMilli(), RequestCount: 1},
		{Timestamp: day.Add(9*time.Hour + 30*time.Minute).UnixMilli(), RequestCount: 1},
		{Timestamp: day.Add(17 * time.Hour).UnixMilli(), RequestCount: 1},
	}

	results, err := e.Aggregate(ctx, points, query.AggregationConfig{
		Window:            types.WindowDay,
		TrackTimePatterns: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	hours := results[0].HourCounts
	if hours[9] != 2 || hours[17] != 1 {
		t.Errorf("hour counts = %v", hours)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	e := New()

	results, err := e.Aggregate(context.Background(), nil, query.AggregationConfig{Window: types.WindowHour})
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d windows from no points", len(results))
	}
}
