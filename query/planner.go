package query

// heuristicEstimator is the default cost model. It is intentionally
// non-adaptive: costs come from fixed credits, not observed statistics.
type heuristicEstimator struct{}

const (
	baseCost        = 1000.0
	indexCredit     = 200.0
	sortPenalty     = 100.0
	limitCostFactor = 10.0
	costFloor       = 10.0
)

// Estimate prices a query: base 1000, minus 200 per filter field with a
// registered index, plus 100 per sort field, capped at limit x 10 when a
// limit is present, floored at 10.
func (heuristicEstimator) Estimate(filters []Filter, opts Options, indexedFields []string) float64 {
	cost := baseCost

	cost -= float64(len(indexedFields)) * indexCredit
	cost += float64(len(opts.Sort)) * sortPenalty

	if opts.Limit > 0 {
		if ceiling := float64(opts.Limit) * limitCostFactor; cost > ceiling {
			cost = ceiling
		}
	}

	if cost < costFloor {
		cost = costFloor
	}

	return cost
}
