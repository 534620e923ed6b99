package query

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quellen/usagevault/errs"
)

// indexCatalog persists IndexSpec metadata. Specs influence cost
// estimation and stats only; they never restructure stored buckets.
type indexCatalog struct {
	path    string
	indexes map[string]IndexSpec
}

type indexDocument struct {
	Indexes     []IndexSpec `json:"indexes"`
	LastUpdated int64       `json:"lastUpdated"`
}

func newIndexCatalog(dir string) *indexCatalog {
	return &indexCatalog{
		path:    filepath.Join(dir, "indexes.json"),
		indexes: make(map[string]IndexSpec),
	}
}

func (c *indexCatalog) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errs.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read index catalog: %w", err)
	}

	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errs.Corrupt(c.path, err)
	}

	for _, spec := range doc.Indexes {
		c.indexes[spec.Field] = spec
	}

	return nil
}

func (c *indexCatalog) persist() error {
	doc := indexDocument{
		Indexes:     c.list(),
		LastUpdated: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode index catalog: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write index catalog: %w", err)
	}

	return nil
}

func (c *indexCatalog) put(spec IndexSpec) {
	c.indexes[spec.Field] = spec
}

func (c *indexCatalog) remove(field string) bool {
	if _, ok := c.indexes[field]; !ok {
		return false
	}
	delete(c.indexes, field)
	return true
}

func (c *indexCatalog) has(field string) bool {
	_, ok := c.indexes[field]
	return ok
}

// list returns specs sorted by field for stable output.
func (c *indexCatalog) list() []IndexSpec {
	out := make([]IndexSpec, 0, len(c.indexes))
	for _, spec := range c.indexes {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// indexedFilterFields returns the filter fields that have a registered
// index, in filter order, de-duplicated.
func (c *indexCatalog) indexedFilterFields(filters []Filter) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range filters {
		if _, dup := seen[f.Field]; dup {
			continue
		}
		seen[f.Field] = struct{}{}
		if c.has(f.Field) {
			out = append(out, f.Field)
		}
	}
	return out
}
