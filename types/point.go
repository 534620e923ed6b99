package types

import "time"

// UsageDataPoint is a single usage/cost sample. Points are immutable once
// written; an update is a re-insertion via read-modify-write of the owning
// bucket's full point list.
type UsageDataPoint struct {
	// Timestamp is the sample time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Date is the calendar date string (YYYY-MM-DD) the sample belongs to.
	Date string `json:"date"`

	// RequestCount is the number of requests observed at this sample.
	RequestCount int `json:"requestCount"`

	// TotalCost is the accumulated cost in account currency.
	TotalCost float64 `json:"totalCost"`

	// DailyLimit is the configured daily budget at sample time.
	DailyLimit float64 `json:"dailyLimit"`

	// UsagePercentage is TotalCost relative to DailyLimit, 0-100.
	UsagePercentage float64 `json:"usagePercentage"`

	// ResetTime is the limit reset time as reported upstream.
	ResetTime string `json:"resetTime"`

	// SessionID correlates the sample to a session, if known.
	SessionID string `json:"sessionId,omitempty"`

	// Features tags the sample with the features in use.
	Features []string `json:"features,omitempty"`

	// Metadata carries free-form extra fields.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Time returns the timestamp as a time.Time in UTC.
func (p *UsageDataPoint) Time() time.Time {
	return time.UnixMilli(p.Timestamp).UTC()
}

// Age returns the sample age relative to now.
func (p *UsageDataPoint) Age(now time.Time) time.Duration {
	return now.Sub(p.Time())
}

// TimeRange is an inclusive millisecond time range [Start, End].
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Contains reports whether ts falls within the range, inclusive both ends.
func (r TimeRange) Contains(ts int64) bool {
	return ts >= r.Start && ts <= r.End
}

// Intersects reports whether the half-open bucket range [start, end)
// overlaps this inclusive range.
func (r TimeRange) Intersects(start, end int64) bool {
	return start <= r.End && end > r.Start
}

// StorageQuery selects points by time range with optional pagination.
type StorageQuery struct {
	Range  TimeRange
	Offset int
	Limit  int
}

// StorageOperationResult is the uniform outcome of every mutating storage
// operation. Failures are carried in Error rather than surfaced as Go
// errors so callers can branch without unwrapping.
type StorageOperationResult struct {
	Success         bool   `json:"success"`
	RecordsAffected int    `json:"recordsAffected"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	Error           string `json:"error,omitempty"`
}

// StorageStats summarizes the physical state of a store.
type StorageStats struct {
	TotalDataPoints    int     `json:"totalDataPoints"`
	TotalSizeBytes     int64   `json:"totalSizeBytes"`
	BucketCount        int     `json:"bucketCount"`
	CompressedBuckets  int     `json:"compressedBuckets"`
	OldestRecord       int64   `json:"oldestRecord"`
	NewestRecord       int64   `json:"newestRecord"`
	AveragePointsPerDay float64 `json:"averagePointsPerDay"`
}

// AggregatedUsage is one window of a queryAggregated rollup.
type AggregatedUsage struct {
	WindowStart int64 `json:"windowStart"`

	TotalRequests int     `json:"totalRequests"`
	TotalCost     float64 `json:"totalCost"`

	// PeakUsage is the maximum usage percentage seen in the window.
	PeakUsage float64 `json:"peakUsage"`

	// AverageUsage is TotalRequests divided by DataPoints.
	AverageUsage float64 `json:"averageUsage"`

	// UniqueSessions is approximated by the running point count; a real
	// distinct-count would require per-window session sets.
	UniqueSessions int `json:"uniqueSessions"`

	// Features is the de-duplicated union of feature tags in the window.
	Features []string `json:"features"`

	// DataPoints is the number of samples folded into the window.
	DataPoints int `json:"dataPoints"`
}
