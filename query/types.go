package query

import (
	"context"

	"github.com/quellen/usagevault/types"
)

// Storage is the raw point retrieval contract the query engine depends on.
// *storage.Engine satisfies it.
type Storage interface {
	Query(ctx context.Context, q types.StorageQuery) ([]types.UsageDataPoint, error)
}

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNe      Operator = "ne"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpIn      Operator = "in"
	OpNin     Operator = "nin"
	OpExists  Operator = "exists"
	OpRegex   Operator = "regex"
	OpBetween Operator = "between"
)

// Filter is a single {field, operator, value} predicate. Field supports
// dot-separated nested paths (e.g. "metadata.model"). Multiple filters are
// always conjunctive; there is no OR grouping.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`

	// CaseSensitive applies to the regex operator only.
	CaseSensitive bool `json:"caseSensitive,omitempty"`
}

// Direction orders a sort key.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// SortSpec is one sort key with its direction.
type SortSpec struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Options shapes a query: sort order, pagination, projection and time
// range. The zero value means unfiltered, unsorted, unpaginated.
type Options struct {
	Sort      []SortSpec       `json:"sort,omitempty"`
	Limit     int              `json:"limit,omitempty"`
	Skip      int              `json:"skip,omitempty"`
	Select    []string         `json:"select,omitempty"`
	TimeRange *types.TimeRange `json:"timeRange,omitempty"`
}

// Result is the outcome of a query. TotalCount is the filtered row count
// before pagination. When a projection was requested, Fields carries the
// projected rows and Points is nil.
type Result struct {
	Points []types.UsageDataPoint `json:"points,omitempty"`
	Fields []map[string]any       `json:"fields,omitempty"`

	TotalCount      int   `json:"totalCount"`
	ExecutionTimeMs int64 `json:"executionTimeMs"`
	FromCache       bool  `json:"fromCache"`
}

// Len returns the number of returned rows.
func (r *Result) Len() int {
	if r.Fields != nil {
		return len(r.Fields)
	}
	return len(r.Points)
}

// AggOp names a group-by aggregation.
type AggOp string

const (
	AggCount AggOp = "count"
	AggSum   AggOp = "sum"
	AggAvg   AggOp = "avg"
	AggMin   AggOp = "min"
	AggMax   AggOp = "max"
)

// GroupBy is one group-by spec: group rows by Field's string value and
// compute Aggregation over it.
type GroupBy struct {
	Field       string `json:"field"`
	Aggregation AggOp  `json:"aggregation"`
}

// AggregateOptions extends Options for aggregate queries. With Window set,
// the external Aggregation Engine computes windowed statistics; otherwise
// the internal group-by runs.
type AggregateOptions struct {
	Options
	Window *types.AggregationWindow `json:"window,omitempty"`
}

// GroupRow is one group of the internal group-by. Key is the "|"-joined
// concatenation of the group fields' string values.
type GroupRow struct {
	Key        string             `json:"key"`
	Count      int                `json:"count"`
	Aggregates map[string]float64 `json:"aggregates"`
}

// AggregateOutcome carries either windowed statistics (Window requested)
// or group-by rows.
type AggregateOutcome struct {
	Windowed []AggregationResult `json:"windowed,omitempty"`
	Grouped  []GroupRow          `json:"grouped,omitempty"`

	ExecutionTimeMs int64 `json:"executionTimeMs"`
}

// AggregationConfig is the contract consumed from the external Aggregation
// Engine.
type AggregationConfig struct {
	Window            types.AggregationWindow
	PercentileLevels  []int
	ConfidenceLevel   float64
	TrackFeatures     bool
	TrackTimePatterns bool
}

// AggregationResult is one window of externally computed statistics.
type AggregationResult struct {
	WindowStart int64 `json:"windowStart"`
	WindowEnd   int64 `json:"windowEnd"`

	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`

	// Percentiles is keyed by requested level (e.g. 95 -> p95 value).
	Percentiles map[int]float64 `json:"percentiles,omitempty"`

	// Confidence interval of the mean at the requested level.
	ConfidenceLow  float64 `json:"confidenceLow"`
	ConfidenceHigh float64 `json:"confidenceHigh"`

	Features []string `json:"features,omitempty"`

	// HourCounts maps hour-of-day to sample count when time pattern
	// tracking is on.
	HourCounts map[int]int `json:"hourCounts,omitempty"`
}

// Aggregator is the external Aggregation Engine the query engine calls for
// statistical rollups.
type Aggregator interface {
	Aggregate(ctx context.Context, points []types.UsageDataPoint, cfg AggregationConfig) ([]AggregationResult, error)
}

// IndexSpec is a planning hint recorded by the engine. Declaring one
// changes cost estimates and stats bookkeeping only.
type IndexSpec struct {
	Field      string `json:"field"`
	Type       string `json:"type"` // btree or hash
	Unique     bool   `json:"unique"`
	Sparse     bool   `json:"sparse"`
	Background bool   `json:"background"`
}

// Plan is the output of Explain: the heuristic cost estimate and what the
// execution would involve.
type Plan struct {
	EstimatedCost       float64  `json:"estimatedCost"`
	IndexedFields       []string `json:"indexedFields"`
	FilterOrder         []string `json:"filterOrder"`
	RequiresSort        bool     `json:"requiresSort"`
	RequiresAggregation bool     `json:"requiresAggregation"`
}

// CostEstimator prices a query plan. The default heuristic implementation
// can be replaced by a statistics-driven one without changing the Explain
// contract.
type CostEstimator interface {
	Estimate(filters []Filter, opts Options, indexedFields []string) float64
}
