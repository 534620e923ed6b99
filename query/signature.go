package query

import (
	"sort"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/quellen/usagevault/types"
)

// canonicalQuery is the normalized shape serialized into a cache
// signature. Filters are sorted by field name so the signature is
// independent of filter order; sort and select keep their given order, so
// reordering either produces a different signature. Callers rely on this
// asymmetry.
type canonicalQuery struct {
	Filters   []Filter        `json:"filters"`
	Sort      []SortSpec      `json:"sort"`
	Limit     int             `json:"limit"`
	Skip      int             `json:"skip"`
	Select    []string        `json:"select"`
	TimeRange types.TimeRange `json:"timeRange"`
}

// signature derives the cache key for a query: canonicalize, serialize,
// reduce through a non-cryptographic string hash to a short base-36 key.
func signature(filters []Filter, opts Options) string {
	canon := canonicalQuery{
		Filters: append([]Filter(nil), filters...),
		Sort:    opts.Sort,
		Limit:   opts.Limit,
		Skip:    opts.Skip,
		Select:  opts.Select,
	}
	if canon.Filters == nil {
		canon.Filters = []Filter{}
	}
	if canon.Sort == nil {
		canon.Sort = []SortSpec{}
	}
	if canon.Select == nil {
		canon.Select = []string{}
	}
	if opts.TimeRange != nil {
		canon.TimeRange = *opts.TimeRange
	}

	sort.SliceStable(canon.Filters, func(i, j int) bool {
		return canon.Filters[i].Field < canon.Filters[j].Field
	})

	data, err := json.Marshal(canon)
	if err != nil {
		// Marshal of these shapes cannot fail; fall back to a fixed key
		// rather than panic in a read path.
		return "sig-error"
	}

	return hashKey(string(data))
}

// hashKey is the classic 31x string hash with int32 wraparound, rendered
// in base 36.
func hashKey(s string) string {
	var h int32
	for i := 0; i < len(s); i++ {
		h = (h << 5) - h + int32(s[i])
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
