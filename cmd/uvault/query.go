package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quellen/usagevault/config"
	"github.com/quellen/usagevault/query"
	"github.com/quellen/usagevault/storage"
	"github.com/quellen/usagevault/types"
)

// runQuery executes a one-shot filtered query from CLI flags. Filters use
// field:op:value syntax, e.g. -where usagePercentage:gte:80.
func runQuery(ctx context.Context, store *storage.Engine, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var wheres multiFlag
	fs.Var(&wheres, "where", "filter as field:op:value (repeatable)")
	sortBy := fs.String("sort", "", "sort as field:asc or field:desc, comma-separated")
	limit := fs.Int("limit", 20, "max rows (0 = unlimited)")
	skip := fs.Int("skip", 0, "rows to skip")
	selectFields := fs.String("select", "", "comma-separated fields to project")
	from := fs.Int64("from", 0, "range start, Unix milliseconds")
	to := fs.Int64("to", 0, "range end, Unix milliseconds (0 = now)")
	explain := fs.Bool("explain", false, "print the plan instead of executing")
	fs.Parse(args)

	engine, err := newQueryEngine(store, cfg, logger)
	if err != nil {
		return err
	}

	filters := make([]query.Filter, 0, len(wheres))
	for _, w := range wheres {
		f, err := parseFilter(w)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}

	opts := query.Options{Limit: *limit, Skip: *skip}
	if *sortBy != "" {
		for _, part := range strings.Split(*sortBy, ",") {
			field, dir, _ := strings.Cut(part, ":")
			spec := query.SortSpec{Field: field, Direction: query.Ascending}
			if dir == "desc" {
				spec.Direction = query.Descending
			}
			opts.Sort = append(opts.Sort, spec)
		}
	}
	if *selectFields != "" {
		opts.Select = strings.Split(*selectFields, ",")
	}
	if *from != 0 || *to != 0 {
		end := *to
		if end == 0 {
			end = time.Now().UnixMilli()
		}
		opts.TimeRange = &types.TimeRange{Start: *from, End: end}
	}

	if *explain {
		return printJSON(engine.Explain(filters, opts))
	}

	result, err := engine.Query(ctx, filters, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d of %d rows in %dms\n", result.Len(), result.TotalCount, result.ExecutionTimeMs)
	if result.Fields != nil {
		return printJSON(result.Fields)
	}
	return printJSON(result.Points)
}

// parseFilter parses field:op:value. Values that parse as numbers are
// numeric; "true"/"false" are booleans; in/nin/between accept
// comma-separated lists.
func parseFilter(s string) (query.Filter, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return query.Filter{}, fmt.Errorf("filter %q: want field:op:value", s)
	}

	op := query.Operator(parts[1])
	var value any
	switch op {
	case query.OpIn, query.OpNin, query.OpBetween:
		items := strings.Split(parts[2], ",")
		vals := make([]any, len(items))
		for i, item := range items {
			vals[i] = parseScalar(item)
		}
		value = vals
	default:
		value = parseScalar(parts[2])
	}

	return query.Filter{Field: parts[0], Operator: op, Value: value, CaseSensitive: true}, nil
}

func parseScalar(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// multiFlag collects repeated flag values.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
