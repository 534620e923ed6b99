package aggregate

import (
	"context"
	"math"
	"sort"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/query"
	"github.com/quellen/usagevault/types"
)

// defaultAccuracy is the DDSketch relative accuracy used for percentile
// estimation.
const defaultAccuracy = 0.01

// zScores maps supported confidence levels to their normal z values.
var zScores = map[float64]float64{
	0.90: 1.645,
	0.95: 1.960,
	0.99: 2.576,
}

// Engine computes windowed statistical rollups over usage points. It
// implements query.Aggregator.
type Engine struct {
	accuracy float64
}

// New creates an aggregation engine with the default sketch accuracy.
func New() *Engine {
	return &Engine{accuracy: defaultAccuracy}
}

// NewWithAccuracy creates an aggregation engine with a custom DDSketch
// relative accuracy.
func NewWithAccuracy(accuracy float64) *Engine {
	return &Engine{accuracy: accuracy}
}

// window accumulates running statistics plus a sketch for one time window.
type window struct {
	start int64
	end   int64

	count int
	sum   float64
	min   float64
	max   float64

	sketch *ddsketch.DDSketch

	features   map[string]struct{}
	hourCounts map[int]int
}

func (e *Engine) newWindow(start, end int64, cfg query.AggregationConfig) (*window, error) {
	w := &window{
		start: start,
		end:   end,
		min:   math.MaxFloat64,
		max:   -math.MaxFloat64,
	}
	if len(cfg.PercentileLevels) > 0 {
		sketch, err := ddsketch.NewDefaultDDSketch(e.accuracy)
		if err != nil {
			return nil, err
		}
		w.sketch = sketch
	}
	if cfg.TrackFeatures {
		w.features = make(map[string]struct{})
	}
	if cfg.TrackTimePatterns {
		w.hourCounts = make(map[int]int)
	}
	return w, nil
}

func (w *window) add(p types.UsageDataPoint) {
	v := float64(p.RequestCount)

	w.count++
	w.sum += v
	if v < w.min {
		w.min = v
	}
	if v > w.max {
		w.max = v
	}
	if w.sketch != nil {
		w.sketch.Add(v)
	}
	if w.features != nil {
		for _, f := range p.Features {
			w.features[f] = struct{}{}
		}
	}
	if w.hourCounts != nil {
		w.hourCounts[p.Time().Hour()]++
	}
}

// Aggregate buckets points into cfg.Window-sized windows and computes
// count, sum, mean, min, max, the requested percentiles, and a confidence
// interval of the mean. Results are ordered by window start.
func (e *Engine) Aggregate(ctx context.Context, points []types.UsageDataPoint, cfg query.AggregationConfig) ([]query.AggregationResult, error) {
	if cfg.Window.Duration() == 0 {
		return nil, errs.Wrapf(errs.ErrInvalidConfig, "aggregation window %q unknown", cfg.Window)
	}

	windows := make(map[int64]*window)

	for i := range points {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		p := &points[i]

		start := cfg.Window.Truncate(p.Timestamp).UnixMilli()
		w := windows[start]
		if w == nil {
			var err error
			w, err = e.newWindow(start, start+cfg.Window.Duration().Milliseconds(), cfg)
			if err != nil {
				return nil, err
			}
			windows[start] = w
		}
		w.add(*p)
	}

	starts := make([]int64, 0, len(windows))
	for start := range windows {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	results := make([]query.AggregationResult, 0, len(starts))
	for _, start := range starts {
		results = append(results, e.finalize(windows[start], cfg))
	}
	return results, nil
}

func (e *Engine) finalize(w *window, cfg query.AggregationConfig) query.AggregationResult {
	res := query.AggregationResult{
		WindowStart: w.start,
		WindowEnd:   w.end,
		Count:       w.count,
		Sum:         w.sum,
	}
	if w.count == 0 {
		return res
	}

	res.Mean = w.sum / float64(w.count)
	res.Min = w.min
	res.Max = w.max

	if w.sketch != nil {
		res.Percentiles = make(map[int]float64, len(cfg.PercentileLevels))
		for _, level := range cfg.PercentileLevels {
			if level <= 0 || level >= 100 {
				continue
			}
			if v, err := w.sketch.GetValueAtQuantile(float64(level) / 100); err == nil {
				res.Percentiles[level] = v
			}
		}
	}

	if cfg.ConfidenceLevel > 0 {
		res.ConfidenceLow, res.ConfidenceHigh = confidenceInterval(w, cfg.ConfidenceLevel)
	}

	if w.features != nil {
		res.Features = make([]string, 0, len(w.features))
		for f := range w.features {
			res.Features = append(res.Features, f)
		}
		sort.Strings(res.Features)
	}
	if w.hourCounts != nil {
		res.HourCounts = w.hourCounts
	}

	return res
}

// confidenceInterval approximates the interval of the mean as
// mean +/- z * stddev / sqrt(n), with the standard deviation estimated
// from the sketch's percentile spread when available and from the range
// otherwise.
func confidenceInterval(w *window, level float64) (float64, float64) {
	z, ok := zScores[level]
	if !ok {
		z = zScores[0.95]
	}

	mean := w.sum / float64(w.count)

	var stddev float64
	if w.sketch != nil && w.count > 1 {
		// The p16..p84 spread of a normal distribution spans two
		// standard deviations.
		lo, errLo := w.sketch.GetValueAtQuantile(0.16)
		hi, errHi := w.sketch.GetValueAtQuantile(0.84)
		if errLo == nil && errHi == nil {
			stddev = (hi - lo) / 2
		}
	}
	if stddev == 0 && w.max > w.min {
		stddev = (w.max - w.min) / 4
	}

	margin := z * stddev / math.Sqrt(float64(w.count))
	return mean - margin, mean + margin
}
