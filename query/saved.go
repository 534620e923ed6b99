package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/quellen/usagevault/errs"
)

const (
	savedQueriesFile = "saved-queries.json"
	templatesFile    = "templates.json"
)

// SavedQuery is a named query persisted for reuse.
type SavedQuery struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filters   []Filter  `json:"filters"`
	Options   Options   `json:"options"`
	CreatedAt time.Time `json:"createdAt"`
	LastRunAt time.Time `json:"lastRunAt,omitempty"`
	RunCount  int64     `json:"runCount"`
}

// QueryTemplate is a saved query whose filter values may contain
// ${param} placeholders, bound at instantiation time.
type QueryTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filters   []Filter  `json:"filters"`
	Options   Options   `json:"options"`
	CreatedAt time.Time `json:"createdAt"`
}

type savedQueryStore struct {
	mu        sync.Mutex
	dir       string
	queries   map[string]SavedQuery
	templates map[string]QueryTemplate
	loaded    bool
}

func newSavedQueryStore(dir string) *savedQueryStore {
	return &savedQueryStore{
		dir:       dir,
		queries:   make(map[string]SavedQuery),
		templates: make(map[string]QueryTemplate),
	}
}

func (s *savedQueryStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	if err := loadJSONMap(filepath.Join(s.dir, savedQueriesFile), &s.queries); err != nil {
		return err
	}
	if err := loadJSONMap(filepath.Join(s.dir, templatesFile), &s.templates); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

func loadJSONMap[T any](path string, dst *map[string]T) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errs.Corrupt(path, err)
	}
	return nil
}

func writeJSONMap[T any](path string, src map[string]T) error {
	data, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *savedQueryStore) save(q SavedQuery) (SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return SavedQuery{}, err
	}

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	s.queries[q.ID] = q
	return q, writeJSONMap(filepath.Join(s.dir, savedQueriesFile), s.queries)
}

func (s *savedQueryStore) get(id string) (SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return SavedQuery{}, err
	}

	q, ok := s.queries[id]
	if !ok {
		return SavedQuery{}, errs.Wrapf(errs.ErrQueryNotFound, "id %q", id)
	}
	return q, nil
}

func (s *savedQueryStore) markRun(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	q, ok := s.queries[id]
	if !ok {
		return errs.Wrapf(errs.ErrQueryNotFound, "id %q", id)
	}
	q.LastRunAt = time.Now()
	q.RunCount++
	s.queries[id] = q
	return writeJSONMap(filepath.Join(s.dir, savedQueriesFile), s.queries)
}

func (s *savedQueryStore) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	if _, ok := s.queries[id]; !ok {
		return errs.Wrapf(errs.ErrQueryNotFound, "id %q", id)
	}
	delete(s.queries, id)
	return writeJSONMap(filepath.Join(s.dir, savedQueriesFile), s.queries)
}

func (s *savedQueryStore) list() ([]SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	out := make([]SavedQuery, 0, len(s.queries))
	for _, q := range s.queries {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *savedQueryStore) saveTemplate(t QueryTemplate) (QueryTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return QueryTemplate{}, err
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.templates[t.ID] = t
	return t, writeJSONMap(filepath.Join(s.dir, templatesFile), s.templates)
}

func (s *savedQueryStore) template(id string) (QueryTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return QueryTemplate{}, err
	}

	t, ok := s.templates[id]
	if !ok {
		return QueryTemplate{}, errs.Wrapf(errs.ErrQueryNotFound, "template %q", id)
	}
	return t, nil
}

// instantiate binds ${param} placeholders in string filter values.
// Unbound placeholders are an error.
func (t QueryTemplate) instantiate(params map[string]any) ([]Filter, error) {
	filters := make([]Filter, len(t.Filters))
	copy(filters, t.Filters)

	for i, f := range filters {
		str, ok := f.Value.(string)
		if !ok || !strings.HasPrefix(str, "${") || !strings.HasSuffix(str, "}") {
			continue
		}
		name := str[2 : len(str)-1]
		val, ok := params[name]
		if !ok {
			return nil, errs.Wrapf(errs.ErrInvalidFilter, "template parameter %q unbound", name)
		}
		filters[i].Value = val
	}
	return filters, nil
}

// SaveQuery persists a named query for reuse.
func (e *Engine) SaveQuery(name string, filters []Filter, opts Options) (SavedQuery, error) {
	if name == "" {
		return SavedQuery{}, fmt.Errorf("%w: saved query needs a name", errs.ErrInvalidConfig)
	}
	return e.saved.save(SavedQuery{Name: name, Filters: filters, Options: opts})
}

// RunSavedQuery executes a previously saved query and records the run.
func (e *Engine) RunSavedQuery(ctx context.Context, id string) (Result, error) {
	q, err := e.saved.get(id)
	if err != nil {
		return Result{}, err
	}
	res, err := e.Query(ctx, q.Filters, q.Options)
	if err != nil {
		return Result{}, err
	}
	if err := e.saved.markRun(id); err != nil {
		e.log.Warn("saved query bookkeeping failed", "id", id, "error", err)
	}
	return res, nil
}

// DeleteSavedQuery removes a saved query.
func (e *Engine) DeleteSavedQuery(id string) error {
	return e.saved.delete(id)
}

// ListSavedQueries returns saved queries sorted by name.
func (e *Engine) ListSavedQueries() ([]SavedQuery, error) {
	return e.saved.list()
}

// SaveTemplate persists a parameterized query template.
func (e *Engine) SaveTemplate(name string, filters []Filter, opts Options) (QueryTemplate, error) {
	if name == "" {
		return QueryTemplate{}, fmt.Errorf("%w: template needs a name", errs.ErrInvalidConfig)
	}
	return e.saved.saveTemplate(QueryTemplate{Name: name, Filters: filters, Options: opts})
}

// InstantiateTemplate binds parameters into a template's filters.
func (e *Engine) InstantiateTemplate(id string, params map[string]any) ([]Filter, Options, error) {
	t, err := e.saved.template(id)
	if err != nil {
		return nil, Options{}, err
	}
	filters, err := t.instantiate(params)
	if err != nil {
		return nil, Options{}, err
	}
	return filters, t.Options, nil
}
