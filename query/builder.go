package query

import (
	"context"

	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/types"
)

// Builder assembles a query fluently. Methods return the builder itself
// so calls chain; Execute, Count and First terminate the chain.
type Builder struct {
	engine  *Engine
	filters []Filter
	opts    Options
}

func newBuilder(e *Engine) *Builder {
	return &Builder{engine: e}
}

// Where appends a conjunctive filter. Matching is case sensitive; use
// WhereInsensitive for case-folded regex matching.
func (b *Builder) Where(field string, op Operator, value any) *Builder {
	b.filters = append(b.filters, Filter{
		Field:         field,
		Operator:      op,
		Value:         value,
		CaseSensitive: true,
	})
	return b
}

// WhereInsensitive appends a case-insensitive filter.
func (b *Builder) WhereInsensitive(field string, op Operator, value any) *Builder {
	b.filters = append(b.filters, Filter{Field: field, Operator: op, Value: value})
	return b
}

// Sort appends a sort key. Earlier keys take precedence.
func (b *Builder) Sort(field string, dir Direction) *Builder {
	b.opts.Sort = append(b.opts.Sort, SortSpec{Field: field, Direction: dir})
	return b
}

// Limit caps the number of returned rows. Zero means unlimited.
func (b *Builder) Limit(n int) *Builder {
	b.opts.Limit = n
	return b
}

// Skip drops the first n matching rows after sorting.
func (b *Builder) Skip(n int) *Builder {
	b.opts.Skip = n
	return b
}

// Select restricts output to the named fields. Projection happens after
// filtering, sorting and pagination.
func (b *Builder) Select(fields ...string) *Builder {
	b.opts.Select = append(b.opts.Select, fields...)
	return b
}

// TimeRange bounds the storage scan.
func (b *Builder) TimeRange(start, end int64) *Builder {
	b.opts.TimeRange = &types.TimeRange{Start: start, End: end}
	return b
}

// Execute runs the assembled query.
func (b *Builder) Execute(ctx context.Context) (Result, error) {
	return b.engine.Query(ctx, b.filters, b.opts)
}

// Count returns the total match count, ignoring pagination and
// projection.
func (b *Builder) Count(ctx context.Context) (int, error) {
	opts := b.opts
	opts.Limit = 1
	opts.Skip = 0
	opts.Select = nil

	res, err := b.engine.Query(ctx, b.filters, opts)
	if err != nil {
		return 0, err
	}
	return res.TotalCount, nil
}

// First returns the first matching row, or errs.ErrNotFound when nothing
// matches.
func (b *Builder) First(ctx context.Context) (types.UsageDataPoint, error) {
	opts := b.opts
	opts.Limit = 1
	opts.Skip = 0
	opts.Select = nil

	res, err := b.engine.Query(ctx, b.filters, opts)
	if err != nil {
		return types.UsageDataPoint{}, err
	}
	if len(res.Points) == 0 {
		return types.UsageDataPoint{}, errs.ErrNotFound
	}
	return res.Points[0], nil
}

// Explain prices the assembled query without running it.
func (b *Builder) Explain() Plan {
	return b.engine.Explain(b.filters, b.opts)
}
