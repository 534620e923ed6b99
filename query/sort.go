package query

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// applySort orders rows by the sort specs: multi-key, stable, first
// non-zero comparator wins. Numeric fields compare numerically, strings
// lexically, mixed types fall back to string comparison.
func applySort(rows []row, specs []SortSpec) {
	if len(specs) == 0 {
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, spec := range specs {
			c := compareValues(rows[i].resolve(spec.Field), rows[j].resolve(spec.Field))
			if c == 0 {
				continue
			}
			if spec.Direction == Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareValues(a, b gjson.Result) int {
	if a.Type == gjson.Number && b.Type == gjson.Number {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		default:
			return 0
		}
	}
	// Missing fields stringify to "" and order first.
	return strings.Compare(a.String(), b.String())
}
