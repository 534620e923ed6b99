package types

import (
	"fmt"
	"strings"
	"time"
)

// BucketStrategy controls how timestamps map to bucket keys. It is fixed
// per storage instance; mixing strategies in one directory is invalid.
type BucketStrategy int

const (
	// StrategyDaily keys buckets by UTC calendar day (YYYY-MM-DD).
	StrategyDaily BucketStrategy = iota

	// StrategyWeekly keys buckets by the ISO date of the week's Sunday
	// plus a literal "-week" suffix.
	StrategyWeekly

	// StrategyMonthly keys buckets by UTC calendar month (YYYY-MM).
	StrategyMonthly
)

const weeklySuffix = "-week"

// String returns the configuration name of the strategy.
func (s BucketStrategy) String() string {
	switch s {
	case StrategyDaily:
		return "daily"
	case StrategyWeekly:
		return "weekly"
	case StrategyMonthly:
		return "monthly"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ParseStrategy parses a configuration string into a BucketStrategy.
func ParseStrategy(s string) (BucketStrategy, error) {
	switch s {
	case "daily":
		return StrategyDaily, nil
	case "weekly":
		return StrategyWeekly, nil
	case "monthly":
		return StrategyMonthly, nil
	default:
		return StrategyDaily, fmt.Errorf("unsupported bucket strategy: %q", s)
	}
}

// KeyFor derives the bucket key for a timestamp. The mapping is
// deterministic: the same timestamp always yields the same key across
// calls and process restarts.
func (s BucketStrategy) KeyFor(tsMs int64) string {
	t := time.UnixMilli(tsMs).UTC()
	switch s {
	case StrategyWeekly:
		sunday := t.AddDate(0, 0, -int(t.Weekday()))
		return sunday.Format("2006-01-02") + weeklySuffix
	case StrategyMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// ParseKey decodes a bucket key back to its bucket start time. Decoding is
// strategy-aware: weekly keys carry a "-week" suffix that must be stripped
// before date parsing, so a naive split on "-" is never used.
func (s BucketStrategy) ParseKey(key string) (time.Time, error) {
	switch s {
	case StrategyWeekly:
		base, ok := strings.CutSuffix(key, weeklySuffix)
		if !ok {
			return time.Time{}, fmt.Errorf("weekly bucket key %q missing %q suffix", key, weeklySuffix)
		}
		return time.ParseInLocation("2006-01-02", base, time.UTC)
	case StrategyMonthly:
		return time.ParseInLocation("2006-01", key, time.UTC)
	default:
		return time.ParseInLocation("2006-01-02", key, time.UTC)
	}
}

// RangeFor returns the half-open [start, end) millisecond range covered by
// the bucket key.
func (s BucketStrategy) RangeFor(key string) (startMs, endMs int64, err error) {
	start, err := s.ParseKey(key)
	if err != nil {
		return 0, 0, err
	}

	var end time.Time
	switch s {
	case StrategyWeekly:
		end = start.AddDate(0, 0, 7)
	case StrategyMonthly:
		end = start.AddDate(0, 1, 0)
	default:
		end = start.AddDate(0, 0, 1)
	}

	return start.UnixMilli(), end.UnixMilli(), nil
}

// Granularity is the nominal sampling resolution assigned to a bucket from
// the age of its first point at creation time. It is descriptive metadata;
// it does not resample stored data.
type Granularity int

const (
	GranularityMinute Granularity = iota
	GranularityHour
	GranularityDay
)

// String returns the persisted name of the granularity.
func (g Granularity) String() string {
	switch g {
	case GranularityMinute:
		return "minute"
	case GranularityHour:
		return "hour"
	case GranularityDay:
		return "day"
	default:
		return fmt.Sprintf("unknown(%d)", g)
	}
}

// ParseGranularity parses a persisted granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "minute":
		return GranularityMinute, nil
	case "hour":
		return GranularityHour, nil
	case "day":
		return GranularityDay, nil
	default:
		return GranularityMinute, fmt.Errorf("unknown granularity: %q", s)
	}
}

// MarshalJSON encodes the granularity as its string name, matching the
// persisted index layout.
func (g Granularity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + g.String() + `"`), nil
}

// UnmarshalJSON decodes a granularity string name.
func (g *Granularity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseGranularity(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// GranularityForAge selects the granularity for a bucket whose first point
// is age old: under 7 days minute, under 30 days hour, otherwise day.
func GranularityForAge(age time.Duration) Granularity {
	switch {
	case age < 7*24*time.Hour:
		return GranularityMinute
	case age < 30*24*time.Hour:
		return GranularityHour
	default:
		return GranularityDay
	}
}

// StorageBucket describes one physical storage unit: a time-bounded file
// of sorted points. FilePath (plus ".gz" when Compressed) is the sole
// on-disk source of truth for the bucket's points.
type StorageBucket struct {
	StartTime        int64       `json:"startTime"`
	EndTime          int64       `json:"endTime"`
	Granularity      Granularity `json:"granularity"`
	FilePath         string      `json:"filePath"`
	Compressed       bool        `json:"compressed"`
	CompressionLevel int         `json:"compressionLevel"`

	// Encrypted is a declared capability flag; encryption is not
	// implemented.
	Encrypted bool `json:"encrypted"`
}

// Covers reports whether ts falls inside the bucket's half-open range.
func (b *StorageBucket) Covers(ts int64) bool {
	return ts >= b.StartTime && ts < b.EndTime
}

// Age returns the bucket age measured from its start time.
func (b *StorageBucket) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(b.StartTime))
}

// AggregationWindow is a time-bucketed grouping used for rollups.
type AggregationWindow int

const (
	WindowHour AggregationWindow = iota
	WindowDay
	WindowWeek
	WindowMonth
)

// String returns the window's configuration name.
func (w AggregationWindow) String() string {
	switch w {
	case WindowHour:
		return "hour"
	case WindowDay:
		return "day"
	case WindowWeek:
		return "week"
	case WindowMonth:
		return "month"
	default:
		return fmt.Sprintf("unknown(%d)", w)
	}
}

// ParseWindow parses a window name.
func ParseWindow(s string) (AggregationWindow, error) {
	switch s {
	case "hour":
		return WindowHour, nil
	case "day":
		return WindowDay, nil
	case "week":
		return WindowWeek, nil
	case "month":
		return WindowMonth, nil
	default:
		return WindowHour, fmt.Errorf("unknown aggregation window: %q", s)
	}
}

// Truncate returns the UTC start of the window containing ts. Weeks start
// on Sunday, consistent with the weekly bucket strategy.
func (w AggregationWindow) Truncate(tsMs int64) time.Time {
	t := time.UnixMilli(tsMs).UTC()
	switch w {
	case WindowHour:
		return t.Truncate(time.Hour)
	case WindowDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case WindowWeek:
		sunday := t.AddDate(0, 0, -int(t.Weekday()))
		return time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 0, 0, 0, 0, time.UTC)
	case WindowMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Duration returns the nominal window length. Months use 30 days; window
// boundaries come from Truncate, not from this value.
func (w AggregationWindow) Duration() time.Duration {
	switch w {
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	case WindowWeek:
		return 7 * 24 * time.Hour
	case WindowMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// AllWindows returns all aggregation windows in ascending size order.
func AllWindows() []AggregationWindow {
	return []AggregationWindow{WindowHour, WindowDay, WindowWeek, WindowMonth}
}
