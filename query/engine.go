package query

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/quellen/usagevault/config"
	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/internal/logging"
	"github.com/quellen/usagevault/types"
)

// defaultPercentileLevels are requested from the Aggregation Engine for
// windowed aggregate queries.
var defaultPercentileLevels = []int{25, 50, 75, 90, 95, 99}

// defaultConfidenceLevel for windowed aggregate queries.
const defaultConfidenceLevel = 0.95

// optimizeSlowAvg is the per-signature average above which optimize()
// flags a query.
const optimizeSlowAvg = 500 * time.Millisecond

// optimizeVolumeThreshold is the total query count above which optimize()
// proposes the standard indexes.
const optimizeVolumeThreshold = 100

// Engine executes filtered, sorted, paginated queries over the storage
// engine and delegates statistical rollups to the Aggregation Engine.
type Engine struct {
	mu sync.Mutex

	store      Storage
	aggregator Aggregator
	cfg        config.QueryConfig

	cacheCfg config.CacheConfig
	cache    *resultCache

	catalog   *indexCatalog
	tracker   *statsTracker
	estimator CostEstimator
	saved     *savedQueryStore

	// flight collapses concurrent identical uncached queries into one
	// storage scan.
	flight singleflight.Group

	log *slog.Logger
}

// New creates a query engine over the given storage. The aggregator may be
// nil if windowed aggregate queries are never used.
func New(store Storage, aggregator Aggregator, cfg config.QueryConfig, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, errs.Wrap(errs.ErrInvalidConfig, "query engine requires a storage engine")
	}

	for _, dir := range []string{cfg.BaseDir, cfg.IndexDir(), cfg.CacheDir(), cfg.SavedQueryDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	catalog := newIndexCatalog(cfg.IndexDir())
	if err := catalog.load(); err != nil {
		return nil, err
	}

	log := logging.Component(logger, "query")

	e := &Engine{
		store:      store,
		aggregator: aggregator,
		cfg:        cfg,
		cacheCfg:   cfg.Cache,
		cache:      newResultCache(cfg.Cache.MaxSize, cfg.Cache.TTL),
		catalog:    catalog,
		tracker:    newStatsTracker(cfg.HistoryLimit),
		estimator:  heuristicEstimator{},
		saved:      newSavedQueryStore(cfg.SavedQueryDir()),
		log:        log,
	}

	log.Info("query engine ready", "baseDir", cfg.BaseDir, "indexes", len(catalog.indexes))
	return e, nil
}

// SetCostEstimator swaps the planner's cost model.
func (e *Engine) SetCostEstimator(est CostEstimator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if est != nil {
		e.estimator = est
	}
}

// CreateQuery returns a fluent builder bound to this engine.
func (e *Engine) CreateQuery() *Builder {
	return newBuilder(e)
}

// Query runs the full pipeline: cache lookup, storage scan, conjunctive
// filters, sort, totalCount before pagination, skip/limit, projection
// last.
func (e *Engine) Query(ctx context.Context, filters []Filter, opts Options) (Result, error) {
	start := time.Now()
	key := signature(filters, opts)

	e.mu.Lock()
	indexedFields := e.catalog.indexedFilterFields(filters)
	if e.cacheCfg.Enabled {
		if cached, ok := e.cache.get(key, start); ok {
			cached.FromCache = true
			e.tracker.record(execRecord{
				signature: key,
				elapsed:   time.Since(start),
				returned:  cached.Len(),
				seeks:     len(indexedFields),
				fromCache: true,
				at:        start,
			}, indexedFields)
			e.mu.Unlock()
			return cached, nil
		}
	}
	e.mu.Unlock()

	v, err, _ := e.flight.Do(key, func() (any, error) {
		return e.execute(ctx, filters, opts)
	})
	if err != nil {
		return Result{}, err
	}
	result := v.(Result)

	elapsed := time.Since(start)
	result.ExecutionTimeMs = elapsed.Milliseconds()

	e.mu.Lock()
	e.tracker.record(execRecord{
		signature: key,
		elapsed:   elapsed,
		scanned:   result.TotalCount,
		returned:  result.Len(),
		seeks:     len(indexedFields),
		at:        start,
	}, indexedFields)
	if e.cacheCfg.Enabled {
		e.cache.set(key, result, time.Now())
	}
	e.mu.Unlock()

	if elapsed > e.cfg.SlowQueryThreshold {
		e.log.Warn("slow query",
			"signature", key,
			"elapsedMs", elapsed.Milliseconds(),
			"scanned", result.TotalCount)
	}

	return result, nil
}

// execute is the uncached pipeline.
func (e *Engine) execute(ctx context.Context, filters []Filter, opts Options) (Result, error) {
	tr := types.TimeRange{Start: 0, End: time.Now().UnixMilli()}
	if opts.TimeRange != nil {
		tr = *opts.TimeRange
	}

	points, err := e.store.Query(ctx, types.StorageQuery{Range: tr})
	if err != nil {
		return Result{}, err
	}

	rows, err := encodeRows(points)
	if err != nil {
		return Result{}, err
	}

	filtered := rows[:0:0]
	for i := range rows {
		if matchesAll(&rows[i], filters) {
			filtered = append(filtered, rows[i])
		}
	}

	totalCount := len(filtered)

	applySort(filtered, opts.Sort)

	if opts.Skip > 0 {
		if opts.Skip >= len(filtered) {
			filtered = nil
		} else {
			filtered = filtered[opts.Skip:]
		}
	}
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}

	result := Result{TotalCount: totalCount}

	if len(opts.Select) > 0 {
		fields, err := project(filtered, opts.Select)
		if err != nil {
			return Result{}, err
		}
		result.Fields = fields
	} else {
		result.Points = make([]types.UsageDataPoint, len(filtered))
		for i := range filtered {
			result.Points[i] = filtered[i].point
		}
	}

	return result, nil
}

// AggregateQuery filters and time-ranges data through Query, then either
// delegates to the Aggregation Engine (Window set) or runs the internal
// group-by.
func (e *Engine) AggregateQuery(ctx context.Context, filters []Filter, groupBy []GroupBy, opts AggregateOptions) (AggregateOutcome, error) {
	start := time.Now()

	// Projection would strip the fields aggregation reads.
	queryOpts := opts.Options
	queryOpts.Select = nil

	base, err := e.Query(ctx, filters, queryOpts)
	if err != nil {
		return AggregateOutcome{}, err
	}

	outcome := AggregateOutcome{}

	if opts.Window != nil {
		if e.aggregator == nil {
			return AggregateOutcome{}, errs.Wrap(errs.ErrInvalidConfig, "windowed aggregation requires an aggregation engine")
		}
		windowed, err := e.aggregator.Aggregate(ctx, base.Points, AggregationConfig{
			Window:           *opts.Window,
			PercentileLevels: defaultPercentileLevels,
			ConfidenceLevel:  defaultConfidenceLevel,
			TrackFeatures:    true,
		})
		if err != nil {
			return AggregateOutcome{}, err
		}
		outcome.Windowed = windowed
	} else {
		grouped, err := groupRows(base.Points, groupBy)
		if err != nil {
			return AggregateOutcome{}, err
		}
		outcome.Grouped = grouped
	}

	outcome.ExecutionTimeMs = time.Since(start).Milliseconds()
	return outcome, nil
}

// Explain prices a query without executing it. Filter evaluation order is
// reported unchanged from input order; the engine does not reorder
// filters.
func (e *Engine) Explain(filters []Filter, opts Options) Plan {
	return e.buildPlan(filters, opts, false)
}

// ExplainAggregate prices an aggregate query.
func (e *Engine) ExplainAggregate(filters []Filter, opts AggregateOptions) Plan {
	plan := e.buildPlan(filters, opts.Options, true)
	return plan
}

func (e *Engine) buildPlan(filters []Filter, opts Options, aggregation bool) Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	indexed := e.catalog.indexedFilterFields(filters)

	order := make([]string, len(filters))
	for i, f := range filters {
		order[i] = f.Field
	}

	return Plan{
		EstimatedCost:       e.estimator.Estimate(filters, opts, indexed),
		IndexedFields:       indexed,
		FilterOrder:         order,
		RequiresSort:        len(opts.Sort) > 0,
		RequiresAggregation: aggregation,
	}
}

// CreateIndex registers index metadata and persists the catalog.
func (e *Engine) CreateIndex(spec IndexSpec) error {
	if spec.Field == "" {
		return errs.Wrap(errs.ErrInvalidConfig, "index field is required")
	}
	switch spec.Type {
	case "", "btree":
		spec.Type = "btree"
	case "hash":
	default:
		return errs.Wrapf(errs.ErrInvalidConfig, "index type %q unknown", spec.Type)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.catalog.put(spec)
	if err := e.catalog.persist(); err != nil {
		return err
	}

	e.log.Info("index created", "field", spec.Field, "type", spec.Type)
	return nil
}

// DropIndex removes index metadata.
func (e *Engine) DropIndex(field string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.catalog.remove(field) {
		return errs.Wrapf(errs.ErrIndexNotFound, "field %q", field)
	}
	return e.catalog.persist()
}

// ListIndexes returns the registered index specs sorted by field.
func (e *Engine) ListIndexes() []IndexSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.list()
}

// GetStats aggregates the execution history.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.tracker.snapshot(e.cfg.SlowQueryThreshold)
	s.CacheSize = e.cache.len()
	s.IndexCount = len(e.catalog.indexes)
	return s
}

// Optimize scans the execution history for slow signatures and proposes
// the standard indexes under high query volume.
func (e *Engine) Optimize() []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.suggestions(optimizeSlowAvg, optimizeVolumeThreshold, e.catalog.indexes)
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.clear()
}

// ConfigureCache merges new cache settings. Disabling the cache clears it
// immediately; shrinking MaxSize evicts oldest entries on the next store.
func (e *Engine) ConfigureCache(cfg config.CacheConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cacheCfg = cfg
	if !cfg.Enabled {
		e.cache.clear()
		return
	}
	e.cache.maxSize = cfg.MaxSize
	e.cache.ttl = cfg.TTL
}

// NotifyWrite tells the engine the underlying store changed. With
// InvalidateOnWrite set, cached results are dropped.
func (e *Engine) NotifyWrite() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cacheCfg.InvalidateOnWrite {
		e.cache.clear()
	}
}

// groupRows performs the internal simple group-by: rows are keyed by the
// "|"-joined string values of the group fields, and each spec's
// aggregation is computed over its field's numeric values.
func groupRows(points []types.UsageDataPoint, groupBy []GroupBy) ([]GroupRow, error) {
	if len(groupBy) == 0 {
		return nil, errs.Wrap(errs.ErrInvalidFilter, "group-by requires at least one spec")
	}

	rows, err := encodeRows(points)
	if err != nil {
		return nil, err
	}

	type groupAcc struct {
		row    GroupRow
		sums   map[string]float64
		counts map[string]int
		mins   map[string]float64
		maxs   map[string]float64
	}

	groups := make(map[string]*groupAcc)
	var order []string

	for i := range rows {
		r := &rows[i]

		key := ""
		for gi, spec := range groupBy {
			if gi > 0 {
				key += "|"
			}
			key += r.resolve(spec.Field).String()
		}

		acc := groups[key]
		if acc == nil {
			acc = &groupAcc{
				row:    GroupRow{Key: key, Aggregates: make(map[string]float64)},
				sums:   make(map[string]float64),
				counts: make(map[string]int),
				mins:   make(map[string]float64),
				maxs:   make(map[string]float64),
			}
			groups[key] = acc
			order = append(order, key)
		}

		acc.row.Count++
		for _, spec := range groupBy {
			val := r.resolve(spec.Field)
			if val.Type != gjson.Number {
				continue
			}
			n := val.Num
			field := spec.Field
			if acc.counts[field] == 0 {
				acc.mins[field] = n
				acc.maxs[field] = n
			} else {
				if n < acc.mins[field] {
					acc.mins[field] = n
				}
				if n > acc.maxs[field] {
					acc.maxs[field] = n
				}
			}
			acc.sums[field] += n
			acc.counts[field]++
		}
	}

	out := make([]GroupRow, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		for _, spec := range groupBy {
			name := fmt.Sprintf("%s_%s", spec.Field, spec.Aggregation)
			switch spec.Aggregation {
			case AggCount:
				acc.row.Aggregates[name] = float64(acc.row.Count)
			case AggSum:
				acc.row.Aggregates[name] = acc.sums[spec.Field]
			case AggAvg:
				if n := acc.counts[spec.Field]; n > 0 {
					acc.row.Aggregates[name] = acc.sums[spec.Field] / float64(n)
				}
			case AggMin:
				acc.row.Aggregates[name] = acc.mins[spec.Field]
			case AggMax:
				acc.row.Aggregates[name] = acc.maxs[spec.Field]
			default:
				return nil, errs.Wrapf(errs.ErrInvalidFilter, "aggregation %q unknown", spec.Aggregation)
			}
		}
		out = append(out, acc.row)
	}

	return out, nil
}
