package config

import (
	"fmt"
	"os"

	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/types"
)

// Validate checks the configuration for invalid or contradictory settings.
func (c *Config) Validate() error {
	if c.Storage.BaseDir == "" {
		return errs.Wrap(errs.ErrInvalidConfig, "storage.base_dir is required")
	}

	if _, err := types.ParseStrategy(c.Storage.Strategy); err != nil {
		return fmt.Errorf("storage.bucket_strategy: %v: %w", err, errs.ErrUnsupportedStrategy)
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 9 {
		return errs.Wrapf(errs.ErrInvalidConfig,
			"storage.compression_level %d out of range 1-9", c.Storage.CompressionLevel)
	}

	if c.Storage.CompactAfter <= 0 {
		return errs.Wrap(errs.ErrInvalidConfig, "storage.compact_after must be positive")
	}

	if c.Storage.Retention < 0 {
		return errs.Wrap(errs.ErrInvalidConfig, "storage.retention must not be negative")
	}
	if c.Storage.Retention > 0 && c.Storage.Retention < c.Storage.CompactAfter {
		return errs.Wrap(errs.ErrInvalidConfig,
			"storage.retention shorter than storage.compact_after would drop buckets before compaction")
	}

	if c.Query.BaseDir == "" {
		return errs.Wrap(errs.ErrInvalidConfig, "query.base_dir is required")
	}
	if c.Query.BaseDir == c.Storage.BaseDir {
		return errs.Wrap(errs.ErrInvalidConfig,
			"query.base_dir must differ from storage.base_dir")
	}

	if c.Query.Cache.Enabled {
		if c.Query.Cache.MaxSize <= 0 {
			return errs.Wrap(errs.ErrInvalidConfig, "query.cache.max_size must be positive")
		}
		if c.Query.Cache.TTL <= 0 {
			return errs.Wrap(errs.ErrInvalidConfig, "query.cache.ttl must be positive")
		}
	}

	if c.Query.HistoryLimit <= 0 {
		return errs.Wrap(errs.ErrInvalidConfig, "query.history_limit must be positive")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errs.Wrapf(errs.ErrInvalidConfig, "logging.level %q unknown", c.Logging.Level)
	}

	return nil
}

// EnsureDirectories creates every directory the engines write into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.BaseDir,
		c.Storage.BucketDir(),
		c.Storage.BackupDir(),
		c.Query.BaseDir,
		c.Query.IndexDir(),
		c.Query.CacheDir(),
		c.Query.SavedQueryDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return nil
}
