package storage

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/types"
)

// indexVersion is written into index.json and checked on load.
const indexVersion = "1.0.0"

// indexEntry is one [key, bucket] tuple in the persisted index document.
type indexEntry struct {
	Key    string
	Bucket types.StorageBucket
}

// MarshalJSON encodes the entry as a two-element array, matching the
// persisted layout.
func (e indexEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Key, e.Bucket})
}

// UnmarshalJSON decodes a [key, bucket] array.
func (e *indexEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("index entry has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Key); err != nil {
		return fmt.Errorf("index entry key: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Bucket); err != nil {
		return fmt.Errorf("index entry bucket: %w", err)
	}
	return nil
}

// indexDocument is the on-disk shape of index.json.
type indexDocument struct {
	Buckets     []indexEntry `json:"buckets"`
	LastUpdated int64        `json:"lastUpdated"`
	Version     string       `json:"version"`
}

// bucketIndex is the in-memory catalog of bucket key to descriptor. It is
// the authoritative list of physical storage units; every key present must
// have a corresponding on-disk file (or an empty bucket awaiting its first
// write).
type bucketIndex struct {
	path    string
	buckets map[string]*types.StorageBucket
}

func newBucketIndex(path string) *bucketIndex {
	return &bucketIndex{
		path:    path,
		buckets: make(map[string]*types.StorageBucket),
	}
}

// load reads index.json. A missing file is a fresh store, not an error.
// Undecodable content is classified as corruption.
func (ix *bucketIndex) load() error {
	data, err := os.ReadFile(ix.path)
	if err != nil {
		if errs.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}

	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errs.Corrupt(ix.path, err)
	}

	for _, entry := range doc.Buckets {
		b := entry.Bucket
		ix.buckets[entry.Key] = &b
	}

	return nil
}

// persist rewrites index.json with entries sorted by key, so the document
// is byte-stable for identical catalogs.
func (ix *bucketIndex) persist() error {
	keys := make([]string, 0, len(ix.buckets))
	for k := range ix.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := indexDocument{
		Buckets:     make([]indexEntry, 0, len(keys)),
		LastUpdated: time.Now().UnixMilli(),
		Version:     indexVersion,
	}
	for _, k := range keys {
		doc.Buckets = append(doc.Buckets, indexEntry{Key: k, Bucket: *ix.buckets[k]})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if err := os.WriteFile(ix.path, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	return nil
}

// get returns the bucket for a key, or nil.
func (ix *bucketIndex) get(key string) *types.StorageBucket {
	return ix.buckets[key]
}

// put registers or replaces a bucket descriptor.
func (ix *bucketIndex) put(key string, b *types.StorageBucket) {
	ix.buckets[key] = b
}

// remove drops a bucket from the catalog.
func (ix *bucketIndex) remove(key string) {
	delete(ix.buckets, key)
}

// len returns the number of catalogued buckets.
func (ix *bucketIndex) len() int {
	return len(ix.buckets)
}

// each visits every bucket in key order.
func (ix *bucketIndex) each(fn func(key string, b *types.StorageBucket)) {
	keys := make([]string, 0, len(ix.buckets))
	for k := range ix.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(k, ix.buckets[k])
	}
}

// intersecting returns the buckets whose [start, end) range overlaps the
// inclusive query range, in key order.
func (ix *bucketIndex) intersecting(r types.TimeRange) []*types.StorageBucket {
	var out []*types.StorageBucket
	ix.each(func(_ string, b *types.StorageBucket) {
		if r.Intersects(b.StartTime, b.EndTime) {
			out = append(out, b)
		}
	})
	return out
}
