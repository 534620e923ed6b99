package query

import (
	"testing"

	"github.com/quellen/usagevault/types"
)

func encodeOne(t *testing.T, p types.UsageDataPoint) *row {
	t.Helper()
	rows, err := encodeRows([]types.UsageDataPoint{p})
	if err != nil {
		t.Fatalf("encodeRows: %v", err)
	}
	return &rows[0]
}

func filterTestPoint() types.UsageDataPoint {
	return types.UsageDataPoint{
		Timestamp:       1700000000000,
		Date:            "2023-11-14",
		RequestCount:    42,
		TotalCost:       7.5,
		DailyLimit:      100,
		UsagePercentage: 7.5,
		SessionID:       "Session-ABC",
		Features:        []string{"chat", "search"},
		Metadata:        map[string]any{"plan": "pro", "nested": map[string]any{"tier": 2}},
	}
}

func TestEvaluateFilterOperators(t *testing.T) {
	r := encodeOne(t, filterTestPoint())

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"eq string match", Filter{Field: "sessionId", Operator: OpEq, Value: "Session-ABC"}, true},
		{"eq string case mismatch", Filter{Field: "sessionId", Operator: OpEq, Value: "session-abc"}, false},
		{"eq number match", Filter{Field: "requestCount", Operator: OpEq, Value: 42}, true},
		{"eq no coercion string vs number", Filter{Field: "requestCount", Operator: OpEq, Value: "42"}, false},
		{"eq missing field", Filter{Field: "nope", Operator: OpEq, Value: "x"}, false},
		{"ne", Filter{Field: "requestCount", Operator: OpNe, Value: 41}, true},
		{"ne equal value", Filter{Field: "requestCount", Operator: OpNe, Value: 42}, false},

		{"gt true", Filter{Field: "totalCost", Operator: OpGt, Value: 7.0}, true},
		{"gt boundary", Filter{Field: "totalCost", Operator: OpGt, Value: 7.5}, false},
		{"gte boundary", Filter{Field: "totalCost", Operator: OpGte, Value: 7.5}, true},
		{"lt true", Filter{Field: "totalCost", Operator: OpLt, Value: 8.0}, true},
		{"lt boundary", Filter{Field: "totalCost", Operator: OpLt, Value: 7.5}, false},
		{"lte boundary", Filter{Field: "totalCost", Operator: OpLte, Value: 7.5}, true},
		{"ordering on string field fails", Filter{Field: "sessionId", Operator: OpGt, Value: 1}, false},
		{"ordering with string filter value fails", Filter{Field: "totalCost", Operator: OpGt, Value: "7"}, false},

		{"in hit", Filter{Field: "date", Operator: OpIn, Value: []string{"2023-11-13", "2023-11-14"}}, true},
		{"in miss", Filter{Field: "date", Operator: OpIn, Value: []string{"2023-11-13"}}, false},
		{"in empty list", Filter{Field: "date", Operator: OpIn, Value: []string{}}, false},
		{"in non-list value", Filter{Field: "date", Operator: OpIn, Value: "2023-11-14"}, false},
		{"in numeric", Filter{Field: "requestCount", Operator: OpIn, Value: []int{41, 42}}, true},
		{"nin miss means pass", Filter{Field: "date", Operator: OpNin, Value: []string{"2023-11-13"}}, true},
		{"nin hit means fail", Filter{Field: "date", Operator: OpNin, Value: []string{"2023-11-14"}}, false},
		{"nin empty list passes", Filter{Field: "date", Operator: OpNin, Value: []string{}}, true},
		{"nin non-list value fails", Filter{Field: "date", Operator: OpNin, Value: 7}, false},

		{"exists present", Filter{Field: "sessionId", Operator: OpExists, Value: true}, true},
		{"exists absent", Filter{Field: "missing", Operator: OpExists, Value: true}, false},
		{"exists negated present", Filter{Field: "sessionId", Operator: OpExists, Value: false}, false},
		{"exists negated absent", Filter{Field: "missing", Operator: OpExists, Value: false}, true},
		{"exists default wants presence", Filter{Field: "sessionId", Operator: OpExists}, true},

		{"regex match", Filter{Field: "sessionId", Operator: OpRegex, Value: "^Session-", CaseSensitive: true}, true},
		{"regex case sensitive miss", Filter{Field: "sessionId", Operator: OpRegex, Value: "^session-", CaseSensitive: true}, false},
		{"regex case insensitive hit", Filter{Field: "sessionId", Operator: OpRegex, Value: "^session-"}, true},
		{"regex on number fails", Filter{Field: "requestCount", Operator: OpRegex, Value: "4", CaseSensitive: true}, false},
		{"regex invalid pattern fails", Filter{Field: "sessionId", Operator: OpRegex, Value: "(", CaseSensitive: true}, false},

		{"between inside", Filter{Field: "requestCount", Operator: OpBetween, Value: []int{40, 45}}, true},
		{"between lower bound inclusive", Filter{Field: "requestCount", Operator: OpBetween, Value: []int{42, 45}}, true},
		{"between upper bound inclusive", Filter{Field: "requestCount", Operator: OpBetween, Value: []int{40, 42}}, true},
		{"between outside", Filter{Field: "requestCount", Operator: OpBetween, Value: []int{43, 45}}, false},
		{"between wrong arity", Filter{Field: "requestCount", Operator: OpBetween, Value: []int{40}}, false},
		{"between on string field", Filter{Field: "date", Operator: OpBetween, Value: []int{0, 100}}, false},

		{"nested metadata path", Filter{Field: "metadata.plan", Operator: OpEq, Value: "pro"}, true},
		{"deep nested path", Filter{Field: "metadata.nested.tier", Operator: OpEq, Value: 2}, true},
		{"missing intermediate segment", Filter{Field: "metadata.absent.tier", Operator: OpEq, Value: 2}, false},

		{"unknown operator passes", Filter{Field: "requestCount", Operator: "like", Value: "4%"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluateFilter(r, tt.filter); got != tt.want {
				t.Errorf("evaluateFilter(%+v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestMatchesAllConjunctive(t *testing.T) {
	r := encodeOne(t, filterTestPoint())

	both := []Filter{
		{Field: "requestCount", Operator: OpGte, Value: 42},
		{Field: "metadata.plan", Operator: OpEq, Value: "pro"},
	}
	if !matchesAll(r, both) {
		t.Error("all-true filters should match")
	}

	oneFails := append(both, Filter{Field: "date", Operator: OpEq, Value: "1999-01-01"})
	if matchesAll(r, oneFails) {
		t.Error("one failing filter should reject the row")
	}

	if !matchesAll(r, nil) {
		t.Error("empty filter list should match everything")
	}
}
