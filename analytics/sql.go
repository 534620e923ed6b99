package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// SQLService runs ad hoc SQL over exported Parquet files with an
// in-memory DuckDB instance. The exported files are exposed as a `usage`
// view.
type SQLService struct {
	db  *sql.DB
	dir string
}

// NewSQLService opens an in-memory DuckDB and registers the usage view
// over the Parquet files under dir.
func NewSQLService(dir string) (*SQLService, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	pattern := filepath.Join(dir, "*.parquet")
	view := fmt.Sprintf(
		"CREATE OR REPLACE VIEW usage AS SELECT * FROM read_parquet('%s')",
		strings.ReplaceAll(pattern, "'", "''"))
	if _, err := db.Exec(view); err != nil {
		db.Close()
		return nil, fmt.Errorf("create usage view: %w", err)
	}

	return &SQLService{db: db, dir: dir}, nil
}

// Close releases the DuckDB instance.
func (s *SQLService) Close() error {
	return s.db.Close()
}

// Execute runs a read-only query and returns generic rows.
func (s *SQLService) Execute(ctx context.Context, query string) ([]string, [][]any, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		out = append(out, values)
	}

	return cols, out, rows.Err()
}
