package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/quellen/usagevault/config"
	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/internal/logging"
	"github.com/quellen/usagevault/types"
)

// Engine is the usage history storage engine. It owns the bucket index
// and every file under its base directory.
type Engine struct {
	mu sync.RWMutex

	cfg      config.StorageConfig
	strategy types.BucketStrategy
	index    *bucketIndex
	log      *slog.Logger

	initialized bool
}

// Open creates a storage engine for the configured base directory, loading
// the bucket index if one exists. An unsupported bucket strategy fails
// eagerly here.
func Open(cfg config.StorageConfig, logger *slog.Logger) (*Engine, error) {
	strategy, err := cfg.ParsedStrategy()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrUnsupportedStrategy)
	}

	for _, dir := range []string{cfg.BaseDir, cfg.BucketDir(), cfg.BackupDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	index := newBucketIndex(cfg.IndexPath())
	if err := index.load(); err != nil {
		return nil, err
	}

	log := logging.Component(logger, "storage")
	log.Info("storage engine opened",
		"baseDir", cfg.BaseDir,
		"strategy", strategy.String(),
		"buckets", index.len())

	return &Engine{
		cfg:         cfg,
		strategy:    strategy,
		index:       index,
		log:         log,
		initialized: true,
	}, nil
}

// Strategy returns the engine's fixed bucket strategy.
func (e *Engine) Strategy() types.BucketStrategy {
	return e.strategy
}

// BaseDir returns the storage directory the engine owns.
func (e *Engine) BaseDir() string {
	return e.cfg.BaseDir
}

// Store writes a single point into its bucket, creating the bucket lazily
// and preserving ascending timestamp order within the file.
func (e *Engine) Store(ctx context.Context, point types.UsageDataPoint) types.StorageOperationResult {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(ctx); err != nil {
		return failure(start, err)
	}

	bucket, err := e.ensureBucket(point.Timestamp)
	if err != nil {
		return failure(start, err)
	}

	points, err := readBucketFile(bucket)
	if err != nil {
		return failure(start, err)
	}

	points = insertSorted(points, point)

	if err := writeBucketFile(bucket, points); err != nil {
		return failure(start, err)
	}

	return success(start, 1)
}

// StoreBatch writes many points, grouping them by bucket so each bucket
// file is read, merged, sorted and rewritten exactly once.
func (e *Engine) StoreBatch(ctx context.Context, points []types.UsageDataPoint) types.StorageOperationResult {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(ctx); err != nil {
		return failure(start, err)
	}
	if len(points) == 0 {
		return success(start, 0)
	}

	groups := make(map[string][]types.UsageDataPoint)
	for _, p := range points {
		key := e.strategy.KeyFor(p.Timestamp)
		groups[key] = append(groups[key], p)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	written := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return failure(start, err)
		}

		group := groups[key]
		bucket, err := e.ensureBucket(group[0].Timestamp)
		if err != nil {
			return failure(start, err)
		}

		existing, err := readBucketFile(bucket)
		if err != nil {
			return failure(start, err)
		}

		merged := append(existing, group...)
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp < merged[j].Timestamp
		})

		if err := writeBucketFile(bucket, merged); err != nil {
			return failure(start, err)
		}
		written += len(group)
	}

	return success(start, written)
}

// Query returns all points within the inclusive time range, sorted
// ascending by timestamp, with optional offset/limit pagination.
func (e *Engine) Query(ctx context.Context, q types.StorageQuery) ([]types.UsageDataPoint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.ready(ctx); err != nil {
		return nil, err
	}
	if q.Range.End < q.Range.Start {
		return nil, errs.Wrapf(errs.ErrInvalidRange, "end %d before start %d", q.Range.End, q.Range.Start)
	}

	var out []types.UsageDataPoint
	for _, bucket := range e.index.intersecting(q.Range) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points, err := readBucketFile(bucket)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			if q.Range.Contains(p.Timestamp) {
				out = append(out, p)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			out = nil
		} else {
			out = out[q.Offset:]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

// QueryAggregated folds points in the range into windows of the given
// size. Windows come back sorted by start time.
func (e *Engine) QueryAggregated(ctx context.Context, r types.TimeRange, window types.AggregationWindow) ([]types.AggregatedUsage, error) {
	points, err := e.Query(ctx, types.StorageQuery{Range: r})
	if err != nil {
		return nil, err
	}

	type acc struct {
		agg      types.AggregatedUsage
		features map[string]struct{}
	}
	windows := make(map[int64]*acc)

	for _, p := range points {
		startMs := window.Truncate(p.Timestamp).UnixMilli()
		a := windows[startMs]
		if a == nil {
			a = &acc{
				agg:      types.AggregatedUsage{WindowStart: startMs},
				features: make(map[string]struct{}),
			}
			windows[startMs] = a
		}

		a.agg.DataPoints++
		a.agg.TotalRequests += p.RequestCount
		a.agg.TotalCost += p.TotalCost
		if p.UsagePercentage > a.agg.PeakUsage {
			a.agg.PeakUsage = p.UsagePercentage
		}
		// Session counting uses the running point count as a stand-in
		// for a true distinct count.
		a.agg.UniqueSessions = a.agg.DataPoints
		for _, f := range p.Features {
			a.features[f] = struct{}{}
		}
	}

	out := make([]types.AggregatedUsage, 0, len(windows))
	for _, a := range windows {
		if a.agg.DataPoints > 0 {
			a.agg.AverageUsage = float64(a.agg.TotalRequests) / float64(a.agg.DataPoints)
		}
		a.agg.Features = make([]string, 0, len(a.features))
		for f := range a.features {
			a.agg.Features = append(a.agg.Features, f)
		}
		sort.Strings(a.agg.Features)
		out = append(out, a.agg)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].WindowStart < out[j].WindowStart
	})

	return out, nil
}

// Stats scans every bucket file to report totals and record extremes.
func (e *Engine) Stats(ctx context.Context) (types.StorageStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.ready(ctx); err != nil {
		return types.StorageStats{}, err
	}

	stats := types.StorageStats{}
	var scanErr error

	e.index.each(func(_ string, b *types.StorageBucket) {
		if scanErr != nil {
			return
		}

		if info, err := os.Stat(compressedPath(b)); err == nil {
			stats.TotalSizeBytes += info.Size()
		}

		points, err := readBucketFile(b)
		if err != nil {
			scanErr = err
			return
		}

		stats.BucketCount++
		if b.Compressed {
			stats.CompressedBuckets++
		}
		stats.TotalDataPoints += len(points)

		for _, p := range points {
			if stats.OldestRecord == 0 || p.Timestamp < stats.OldestRecord {
				stats.OldestRecord = p.Timestamp
			}
			if p.Timestamp > stats.NewestRecord {
				stats.NewestRecord = p.Timestamp
			}
		}
	})
	if scanErr != nil {
		return types.StorageStats{}, scanErr
	}

	if stats.TotalDataPoints > 0 {
		spanDays := float64(stats.NewestRecord-stats.OldestRecord) / float64(24*time.Hour/time.Millisecond)
		if spanDays < 1 {
			spanDays = 1
		}
		stats.AveragePointsPerDay = float64(stats.TotalDataPoints) / spanDays
	}

	return stats, nil
}

// Compact gzips buckets older than the configured age. Data is unchanged;
// only the compression flag and file location move.
func (e *Engine) Compact(ctx context.Context) types.StorageOperationResult {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(ctx); err != nil {
		return failure(start, err)
	}

	now := time.Now()
	compacted := 0
	var compactErr error

	e.index.each(func(key string, b *types.StorageBucket) {
		if compactErr != nil {
			return
		}
		if compactErr = ctx.Err(); compactErr != nil {
			return
		}
		if b.Compressed || b.Age(now) <= e.cfg.CompactAfter {
			return
		}

		points, err := readBucketFile(b)
		if err != nil {
			compactErr = err
			return
		}

		plainPath := b.FilePath
		b.Compressed = true
		b.CompressionLevel = e.cfg.CompressionLevel

		if err := writeBucketFile(b, points); err != nil {
			b.Compressed = false
			compactErr = err
			return
		}

		// The index must record the bucket as compressed before the plain
		// file goes away; a failure on a later bucket must not leave this
		// one pointing at a removed file.
		if err := e.index.persist(); err != nil {
			os.Remove(compressedPath(b))
			b.Compressed = false
			compactErr = err
			return
		}

		if err := os.Remove(plainPath); err != nil && !os.IsNotExist(err) {
			e.log.Warn("compacted bucket left stale plain file", "key", key, "error", err)
		}

		compacted++
		e.log.Debug("bucket compacted", "key", key, "points", len(points))
	})
	if compactErr != nil {
		return failure(start, compactErr)
	}

	return success(start, compacted)
}

// PurgeOldData deletes buckets that ended before the cutoff, removing both
// file variants and the index entries. Buckets that merely overlap the
// cutoff are kept.
func (e *Engine) PurgeOldData(ctx context.Context, olderThan time.Time) types.StorageOperationResult {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(ctx); err != nil {
		return failure(start, err)
	}

	cutoff := olderThan.UnixMilli()
	var doomed []string
	e.index.each(func(key string, b *types.StorageBucket) {
		if b.EndTime < cutoff {
			doomed = append(doomed, key)
		}
	})

	for _, key := range doomed {
		b := e.index.get(key)
		for _, path := range []string{b.FilePath, b.FilePath + ".gz"} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return failure(start, fmt.Errorf("purge %s: %w", path, err))
			}
		}
		e.index.remove(key)
		e.log.Debug("bucket purged", "key", key)
	}

	if len(doomed) > 0 {
		if err := e.index.persist(); err != nil {
			return failure(start, err)
		}
	}

	return success(start, len(doomed))
}

// Close drops the in-memory index. The engine is unusable afterwards;
// closing again reports ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return errs.ErrClosed
	}

	e.initialized = false
	e.index = nil
	e.log.Info("storage engine closed")
	return nil
}

// ensureBucket resolves the bucket for a timestamp, creating and
// persisting a new descriptor on first sight of the key.
func (e *Engine) ensureBucket(tsMs int64) (*types.StorageBucket, error) {
	key := e.strategy.KeyFor(tsMs)
	if b := e.index.get(key); b != nil {
		return b, nil
	}

	startMs, endMs, err := e.strategy.RangeFor(key)
	if err != nil {
		return nil, err
	}

	age := time.Since(time.UnixMilli(tsMs))
	b := &types.StorageBucket{
		StartTime:        startMs,
		EndTime:          endMs,
		Granularity:      types.GranularityForAge(age),
		FilePath:         filepath.Join(e.cfg.BucketDir(), key+".json"),
		CompressionLevel: e.cfg.CompressionLevel,
	}

	e.index.put(key, b)
	if err := e.index.persist(); err != nil {
		e.index.remove(key)
		return nil, err
	}

	e.log.Debug("bucket created",
		"key", key,
		"granularity", b.Granularity.String())

	return b, nil
}

// ready rejects operations on a closed engine or canceled context.
func (e *Engine) ready(ctx context.Context) error {
	if !e.initialized {
		return errs.ErrNotInitialized
	}
	return ctx.Err()
}

// insertSorted inserts p at its ascending-timestamp position.
func insertSorted(points []types.UsageDataPoint, p types.UsageDataPoint) []types.UsageDataPoint {
	at := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp > p.Timestamp
	})
	points = append(points, types.UsageDataPoint{})
	copy(points[at+1:], points[at:])
	points[at] = p
	return points
}

func success(start time.Time, affected int) types.StorageOperationResult {
	return types.StorageOperationResult{
		Success:         true,
		RecordsAffected: affected,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}

func failure(start time.Time, err error) types.StorageOperationResult {
	return types.StorageOperationResult{
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Error:           err.Error(),
	}
}
