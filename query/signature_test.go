package query

import (
	"testing"

	"github.com/quellen/usagevault/types"
)

func TestSignatureFilterOrderIndependent(t *testing.T) {
	a := Filter{Field: "date", Operator: OpEq, Value: "2024-01-01"}
	b := Filter{Field: "requestCount", Operator: OpGt, Value: 10}

	s1 := signature([]Filter{a, b}, Options{})
	s2 := signature([]Filter{b, a}, Options{})
	if s1 != s2 {
		t.Errorf("filter order changed signature: %s vs %s", s1, s2)
	}
}

func TestSignatureSortOrderDependent(t *testing.T) {
	sortA := SortSpec{Field: "timestamp", Direction: Ascending}
	sortB := SortSpec{Field: "totalCost", Direction: Descending}

	s1 := signature(nil, Options{Sort: []SortSpec{sortA, sortB}})
	s2 := signature(nil, Options{Sort: []SortSpec{sortB, sortA}})
	if s1 == s2 {
		t.Error("sort order should change the signature")
	}
}

func TestSignatureSelectOrderDependent(t *testing.T) {
	s1 := signature(nil, Options{Select: []string{"date", "totalCost"}})
	s2 := signature(nil, Options{Select: []string{"totalCost", "date"}})
	if s1 == s2 {
		t.Error("projection order should change the signature")
	}
}

func TestSignatureDistinguishesQueries(t *testing.T) {
	base := signature(nil, Options{})

	variants := []Options{
		{Limit: 10},
		{Skip: 5},
		{TimeRange: &types.TimeRange{Start: 1, End: 2}},
		{Select: []string{"date"}},
	}
	seen := map[string]bool{base: true}
	for i, opts := range variants {
		s := signature(nil, opts)
		if seen[s] {
			t.Errorf("variant %d collided with another signature", i)
		}
		seen[s] = true
	}
}

func TestSignatureStable(t *testing.T) {
	filters := []Filter{{Field: "sessionId", Operator: OpEq, Value: "s"}}
	opts := Options{Limit: 3}

	first := signature(filters, opts)
	for i := 0; i < 10; i++ {
		if got := signature(filters, opts); got != first {
			t.Fatalf("signature not deterministic: %s vs %s", got, first)
		}
	}
}

func TestHashKeyBase36(t *testing.T) {
	key := hashKey("hello world")
	if key == "" {
		t.Fatal("empty hash key")
	}
	for _, c := range key {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z') {
			t.Errorf("hash key %q contains non-base36 rune %q", key, c)
		}
	}
}
