package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"github.com/quellen/usagevault/internal/logging"
	"github.com/quellen/usagevault/types"
)

// Source supplies the points to export. *storage.Engine satisfies it.
type Source interface {
	Query(ctx context.Context, q types.StorageQuery) ([]types.UsageDataPoint, error)
}

// UsageRow is the Parquet representation of a usage point. Features are
// flattened to a comma-joined string so the file stays queryable from
// plain SQL.
type UsageRow struct {
	TimestampMs     int64   `parquet:"timestamp_ms"`
	Date            string  `parquet:"date,zstd"`
	RequestCount    int32   `parquet:"request_count"`
	TotalCost       float64 `parquet:"total_cost"`
	DailyLimit      float64 `parquet:"daily_limit"`
	UsagePercentage float64 `parquet:"usage_percentage"`
	SessionID       string  `parquet:"session_id,optional,zstd"`
	Features        string  `parquet:"features,optional,zstd"`
}

func toRow(p *types.UsageDataPoint) UsageRow {
	return UsageRow{
		TimestampMs:     p.Timestamp,
		Date:            p.Date,
		RequestCount:    int32(p.RequestCount),
		TotalCost:       p.TotalCost,
		DailyLimit:      p.DailyLimit,
		UsagePercentage: p.UsagePercentage,
		SessionID:       p.SessionID,
		Features:        strings.Join(p.Features, ","),
	}
}

// Exporter writes usage points out as Parquet files, one file per
// calendar month, written in parallel.
type Exporter struct {
	source Source
	dir    string
	log    *slog.Logger
}

// NewExporter creates an exporter writing under dir.
func NewExporter(source Source, dir string, logger *slog.Logger) *Exporter {
	return &Exporter{
		source: source,
		dir:    dir,
		log:    logging.Component(logger, "analytics"),
	}
}

// Export writes every point in the given range to Parquet and returns the
// created file paths.
func (e *Exporter) Export(ctx context.Context, tr types.TimeRange) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, err
	}

	points, err := e.source.Query(ctx, types.StorageQuery{Range: tr})
	if err != nil {
		return nil, err
	}

	// Partition by month so the files map onto read_parquet globs.
	byMonth := make(map[string][]UsageRow)
	for i := range points {
		month := time.UnixMilli(points[i].Timestamp).UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], toRow(&points[i]))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	paths := make([]string, 0, len(byMonth))
	for month, rows := range byMonth {
		path := filepath.Join(e.dir, fmt.Sprintf("usage-%s.parquet", month))
		paths = append(paths, path)

		rows := rows
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeParquet(path, rows)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.Info("parquet export complete", "files", len(paths), "points", len(points))
	return paths, nil
}

func writeParquet(path string, rows []UsageRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := parquet.NewGenericWriter[UsageRow](f, parquet.Compression(&parquet.Zstd))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close writer %s: %w", path, err)
	}
	return f.Close()
}
