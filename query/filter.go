package query

import (
	"regexp"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/quellen/usagevault/types"
)

// row pairs a point with its JSON encoding so dot-path resolution happens
// against one document per point.
type row struct {
	point types.UsageDataPoint
	raw   []byte
}

func encodeRows(points []types.UsageDataPoint) ([]row, error) {
	rows := make([]row, len(points))
	for i, p := range points {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		rows[i] = row{point: p, raw: raw}
	}
	return rows, nil
}

// resolve looks up a dot-separated field path. Missing intermediate
// segments resolve to a non-existent result.
func (r *row) resolve(field string) gjson.Result {
	return gjson.GetBytes(r.raw, field)
}

// evaluateFilter applies one filter to a row. Unknown operators pass;
// this permissive default is part of the contract.
func evaluateFilter(r *row, f Filter) bool {
	val := r.resolve(f.Field)

	switch f.Operator {
	case OpEq:
		return strictEqual(val, f.Value)
	case OpNe:
		return !strictEqual(val, f.Value)
	case OpGt:
		n, fn, ok := bothNumeric(val, f.Value)
		return ok && n > fn
	case OpGte:
		n, fn, ok := bothNumeric(val, f.Value)
		return ok && n >= fn
	case OpLt:
		n, fn, ok := bothNumeric(val, f.Value)
		return ok && n < fn
	case OpLte:
		n, fn, ok := bothNumeric(val, f.Value)
		return ok && n <= fn
	case OpIn:
		list, ok := asSlice(f.Value)
		if !ok {
			return false
		}
		return containsValue(list, val)
	case OpNin:
		list, ok := asSlice(f.Value)
		if !ok {
			return false
		}
		return !containsValue(list, val)
	case OpExists:
		exists := val.Exists() && val.Type != gjson.Null
		if want, ok := f.Value.(bool); ok && !want {
			return !exists
		}
		return exists
	case OpRegex:
		pattern, ok := f.Value.(string)
		if !ok || val.Type != gjson.String {
			return false
		}
		if !f.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(val.Str)
	case OpBetween:
		bounds, ok := asSlice(f.Value)
		if !ok || len(bounds) != 2 || val.Type != gjson.Number {
			return false
		}
		lo, okLo := asFloat(bounds[0])
		hi, okHi := asFloat(bounds[1])
		if !okLo || !okHi {
			return false
		}
		return val.Num >= lo && val.Num <= hi
	default:
		return true
	}
}

// matchesAll applies every filter conjunctively.
func matchesAll(r *row, filters []Filter) bool {
	for _, f := range filters {
		if !evaluateFilter(r, f) {
			return false
		}
	}
	return true
}

// strictEqual compares a resolved field to a filter value with no type
// coercion: values of different kinds are never equal.
func strictEqual(val gjson.Result, want any) bool {
	switch w := want.(type) {
	case nil:
		return val.Type == gjson.Null
	case bool:
		return val.IsBool() && val.Bool() == w
	case string:
		return val.Type == gjson.String && val.Str == w
	default:
		if n, ok := asFloat(want); ok {
			return val.Type == gjson.Number && val.Num == n
		}
		return false
	}
}

// bothNumeric extracts both sides as numbers; ordering operators are
// numeric-only, anything else fails the filter.
func bothNumeric(val gjson.Result, want any) (field, filter float64, ok bool) {
	if val.Type != gjson.Number {
		return 0, 0, false
	}
	n, ok := asFloat(want)
	if !ok {
		return 0, 0, false
	}
	return val.Num, n, true
}

func containsValue(list []any, val gjson.Result) bool {
	for _, item := range list {
		if strictEqual(val, item) {
			return true
		}
	}
	return false
}

// asSlice accepts the slice shapes filter values arrive in.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
