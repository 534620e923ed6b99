// uvault is the maintenance and query CLI for a usagevault data
// directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quellen/usagevault/aggregate"
	"github.com/quellen/usagevault/analytics"
	"github.com/quellen/usagevault/config"
	"github.com/quellen/usagevault/internal/logging"
	"github.com/quellen/usagevault/query"
	"github.com/quellen/usagevault/storage"
	"github.com/quellen/usagevault/types"
)

// Version is set at build time via ldflags
var Version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, `uvault %s - usage data store maintenance

Usage: uvault [-config path] <command> [args]

Commands:
  stats                     print storage statistics
  compact                   compress buckets past the compaction age
  purge -older <duration>   delete buckets entirely before now-duration
  backup -to <dir>          copy buckets and index to a backup directory
  restore -from <dir>       replace store contents from a backup
  export [-from ms -to ms]  export points to Parquet files
  query [flags]             run a filtered query (see query -help)
  sql [statement]           SQL over exported Parquet (interactive without args)
`, Version)
	os.Exit(2)
}

func main() {
	cfgPath := flag.String("config", "usagevault.yaml", "config file path")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatal("create directories: %v", err)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		fatal("open storage: %v", err)
	}
	defer store.Close()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "stats":
		err = runStats(ctx, store)
	case "compact":
		err = opErr(store.Compact(ctx))
	case "purge":
		err = runPurge(ctx, store, args)
	case "backup":
		err = runBackup(ctx, store, cfg, args)
	case "restore":
		err = runRestore(ctx, store, args)
	case "export":
		err = runExport(ctx, store, cfg, logger, args)
	case "query":
		err = runQuery(ctx, store, cfg, logger, args)
	case "sql":
		err = runSQL(ctx, cfg, args)
	default:
		usage()
	}
	if err != nil {
		fatal("%s: %v", cmd, err)
	}
}

// loadConfig reads the config file, falling back to defaults when the
// file does not exist. Load wraps the read error, so the check must
// unwrap the chain.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "uvault: "+format+"\n", args...)
	os.Exit(1)
}

// opErr converts a storage operation result into an error for exit-code
// handling, printing the summary line on success.
func opErr(res types.StorageOperationResult) error {
	if !res.Success {
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Printf("ok: %d records affected in %dms\n", res.RecordsAffected, res.ExecutionTimeMs)
	return nil
}

func runStats(ctx context.Context, store *storage.Engine) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("data points:       %d\n", stats.TotalDataPoints)
	fmt.Printf("buckets:           %d (%d compressed)\n", stats.BucketCount, stats.CompressedBuckets)
	fmt.Printf("size on disk:      %d bytes\n", stats.TotalSizeBytes)
	fmt.Printf("points per day:    %.1f\n", stats.AveragePointsPerDay)
	if stats.TotalDataPoints > 0 {
		fmt.Printf("oldest record:     %s\n", time.UnixMilli(stats.OldestRecord).UTC().Format(time.RFC3339))
		fmt.Printf("newest record:     %s\n", time.UnixMilli(stats.NewestRecord).UTC().Format(time.RFC3339))
	}
	return nil
}

func runPurge(ctx context.Context, store *storage.Engine, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	older := fs.Duration("older", 90*24*time.Hour, "purge buckets ending before now minus this duration")
	fs.Parse(args)

	return opErr(store.PurgeOldData(ctx, time.Now().Add(-*older)))
}

func runBackup(ctx context.Context, store *storage.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	to := fs.String("to", "", "backup destination directory")
	fs.Parse(args)

	dest := *to
	if dest == "" {
		dest = cfg.Storage.BackupDir() + "/" + time.Now().UTC().Format("20060102-150405")
	}
	fmt.Printf("backing up to %s\n", dest)
	return opErr(store.Backup(ctx, dest))
}

func runRestore(ctx context.Context, store *storage.Engine, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	from := fs.String("from", "", "backup directory to restore from")
	fs.Parse(args)

	if *from == "" {
		return fmt.Errorf("-from is required")
	}
	return opErr(store.Restore(ctx, *from))
}

func runExport(ctx context.Context, store *storage.Engine, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	from := fs.Int64("from", 0, "range start, Unix milliseconds")
	to := fs.Int64("to", time.Now().UnixMilli(), "range end, Unix milliseconds")
	dir := fs.String("dir", "", "output directory (default <baseDir>/export)")
	fs.Parse(args)

	out := *dir
	if out == "" {
		out = filepath.Join(cfg.Storage.BaseDir, "export")
	}

	exporter := analytics.NewExporter(store, out, logger)
	paths, err := exporter.Export(ctx, types.TimeRange{Start: *from, End: *to})
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func newQueryEngine(store *storage.Engine, cfg *config.Config, logger *slog.Logger) (*query.Engine, error) {
	return query.New(store, aggregate.New(), cfg.Query, logger)
}
