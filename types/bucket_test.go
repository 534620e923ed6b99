package types

import (
	"testing"
	"time"
)

func TestBucketKeyDerivation(t *testing.T) {
	// 2024-03-13 was a Wednesday; its week starts Sunday 2024-03-10.
	ts := time.Date(2024, 3, 13, 15, 4, 5, 0, time.UTC).UnixMilli()

	tests := []struct {
		strategy BucketStrategy
		want     string
	}{
		{StrategyDaily, "2024-03-13"},
		{StrategyWeekly, "2024-03-10-week"},
		{StrategyMonthly, "2024-03"},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			if got := tt.strategy.KeyFor(ts); got != tt.want {
				t.Errorf("KeyFor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBucketKeyDeterministic(t *testing.T) {
	ts := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC).UnixMilli()
	for _, s := range []BucketStrategy{StrategyDaily, StrategyWeekly, StrategyMonthly} {
		first := s.KeyFor(ts)
		for i := 0; i < 100; i++ {
			if got := s.KeyFor(ts + int64(i)); got != first {
				t.Fatalf("%s: key changed within a millisecond window: %q vs %q", s, got, first)
			}
		}
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 13, 23, 59, 59, 0, time.UTC).UnixMilli()

	for _, s := range []BucketStrategy{StrategyDaily, StrategyWeekly, StrategyMonthly} {
		key := s.KeyFor(ts)
		start, err := s.ParseKey(key)
		if err != nil {
			t.Fatalf("%s: ParseKey(%q): %v", s, key, err)
		}
		if s.KeyFor(start.UnixMilli()) != key {
			t.Errorf("%s: round trip changed key: %q", s, key)
		}
	}
}

func TestParseKeyWeeklySuffixRequired(t *testing.T) {
	if _, err := StrategyWeekly.ParseKey("2024-03-10"); err == nil {
		t.Error("weekly key without suffix should fail")
	}
	// A weekly key must not parse as a plain date either way around.
	if _, err := StrategyDaily.ParseKey("2024-03-10-week"); err == nil {
		t.Error("daily strategy should reject weekly key")
	}
}

func TestRangeForCoversKey(t *testing.T) {
	ts := time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		strategy BucketStrategy
		length   time.Duration
	}{
		{StrategyDaily, 24 * time.Hour},
		{StrategyWeekly, 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		key := tt.strategy.KeyFor(ts)
		start, end, err := tt.strategy.RangeFor(key)
		if err != nil {
			t.Fatalf("%s: RangeFor: %v", tt.strategy, err)
		}
		if ts < start || ts >= end {
			t.Errorf("%s: timestamp outside its own bucket range", tt.strategy)
		}
		if got := time.Duration(end-start) * time.Millisecond; got != tt.length {
			t.Errorf("%s: range length = %v, want %v", tt.strategy, got, tt.length)
		}
	}
}

func TestRangeForMonthLength(t *testing.T) {
	start, end, err := StrategyMonthly.RangeFor("2024-02")
	if err != nil {
		t.Fatal(err)
	}
	// 2024 is a leap year.
	if got := time.Duration(end-start) * time.Millisecond; got != 29*24*time.Hour {
		t.Errorf("february 2024 range = %v, want %v", got, 29*24*time.Hour)
	}
}

func TestGranularityForAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want Granularity
	}{
		{0, GranularityMinute},
		{6 * 24 * time.Hour, GranularityMinute},
		{7 * 24 * time.Hour, GranularityHour},
		{29 * 24 * time.Hour, GranularityHour},
		{30 * 24 * time.Hour, GranularityDay},
		{365 * 24 * time.Hour, GranularityDay},
	}

	for _, tt := range tests {
		if got := GranularityForAge(tt.age); got != tt.want {
			t.Errorf("GranularityForAge(%v) = %v, want %v", tt.age, got, tt.want)
		}
	}
}

func TestWindowTruncate(t *testing.T) {
	// Wednesday afternoon.
	ts := time.Date(2024, 3, 13, 15, 42, 7, 0, time.UTC).UnixMilli()

	tests := []struct {
		window AggregationWindow
		want   time.Time
	}{
		{WindowHour, time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)},
		{WindowDay, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)},
		{WindowWeek, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{WindowMonth, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			if got := tt.window.Truncate(ts); !got.Equal(tt.want) {
				t.Errorf("Truncate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeRangeIntersects(t *testing.T) {
	r := TimeRange{Start: 100, End: 200}

	tests := []struct {
		name       string
		start, end int64
		want       bool
	}{
		{"inside", 120, 180, true},
		{"covering", 0, 1000, true},
		{"touching start", 50, 101, true},
		{"bucket ends at range start", 50, 100, false},
		{"bucket starts at range end", 200, 300, true},
		{"after", 201, 300, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Intersects(tt.start, tt.end); got != tt.want {
				t.Errorf("Intersects(%d, %d) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}
