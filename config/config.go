// Package config loads and validates the usagevault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quellen/usagevault/types"
)

// Config is the complete configuration for both engines.
type Config struct {
	// Storage configures the storage engine.
	Storage StorageConfig `yaml:"storage"`

	// Query configures the query engine.
	Query QueryConfig `yaml:"query"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures the storage engine.
type StorageConfig struct {
	// BaseDir is the root directory for the bucket index, bucket files
	// and backups. The engine assumes it is the single writer for this
	// directory.
	BaseDir string `yaml:"base_dir"`

	// Strategy is the bucket strategy: daily, weekly or monthly. Fixed
	// per storage directory.
	Strategy string `yaml:"bucket_strategy"`

	// CompressionLevel is the gzip level (1-9) used when compacting.
	CompressionLevel int `yaml:"compression_level"`

	// CompactAfter is the bucket age after which compaction compresses
	// a bucket.
	CompactAfter time.Duration `yaml:"compact_after"`

	// Retention drops buckets that ended more than this long ago.
	// Zero keeps data forever.
	Retention time.Duration `yaml:"retention"`

	// MaintenanceInterval is how often the background maintenance loop
	// runs compaction and retention.
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// QueryConfig configures the query engine.
type QueryConfig struct {
	// BaseDir holds the index catalog, the reserved query-cache
	// directory and saved queries. Must be distinct from
	// Storage.BaseDir; the query engine never writes into the storage
	// directory.
	BaseDir string `yaml:"base_dir"`

	// Cache configures the result cache.
	Cache CacheConfig `yaml:"cache"`

	// SlowQueryThreshold marks a single execution as slow in stats.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`

	// HistoryLimit bounds the per-query execution history.
	HistoryLimit int `yaml:"history_limit"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxSize is the entry capacity; oldest-by-insertion entries are
	// evicted when exceeded.
	MaxSize int `yaml:"max_size"`

	// TTL is the entry lifetime. Stale entries are never returned.
	TTL time.Duration `yaml:"ttl"`

	// KeyFields optionally restricts which point fields participate in
	// cache signatures.
	KeyFields []string `yaml:"key_fields"`

	// InvalidateOnWrite clears the cache whenever the underlying store
	// changes.
	InvalidateOnWrite bool `yaml:"invalidate_on_write"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// JSON switches output from text to JSON.
	JSON bool `yaml:"json"`

	// File, when set, writes rotated logs to this path instead of
	// stdout.
	File string `yaml:"file"`

	// MaxSizeMB is the rotation size threshold for File output.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `yaml:"max_backups"`
}

// Load loads configuration from a YAML file, applying defaults for absent
// fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			BaseDir:             "data/usage-history",
			Strategy:            "daily",
			CompressionLevel:    6,
			CompactAfter:        7 * 24 * time.Hour,
			MaintenanceInterval: time.Hour,
		},
		Query: QueryConfig{
			BaseDir: "data/query-engine",
			Cache: CacheConfig{
				Enabled:           true,
				MaxSize:           100,
				TTL:               5 * time.Minute,
				InvalidateOnWrite: true,
			},
			SlowQueryThreshold: time.Second,
			HistoryLimit:       100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// ParsedStrategy returns the configured bucket strategy.
func (c *StorageConfig) ParsedStrategy() (types.BucketStrategy, error) {
	return types.ParseStrategy(c.Strategy)
}

// BucketDir returns the directory holding bucket files.
func (c *StorageConfig) BucketDir() string {
	return filepath.Join(c.BaseDir, "buckets")
}

// BackupDir returns the directory reserved for backup artifacts.
func (c *StorageConfig) BackupDir() string {
	return filepath.Join(c.BaseDir, "backups")
}

// IndexPath returns the bucket index file path.
func (c *StorageConfig) IndexPath() string {
	return filepath.Join(c.BaseDir, "index.json")
}

// IndexDir returns the query engine's index catalog directory.
func (c *QueryConfig) IndexDir() string {
	return filepath.Join(c.BaseDir, "indexes")
}

// CacheDir returns the reserved query cache directory.
func (c *QueryConfig) CacheDir() string {
	return filepath.Join(c.BaseDir, "query-cache")
}

// SavedQueryDir returns the saved-queries directory.
func (c *QueryConfig) SavedQueryDir() string {
	return filepath.Join(c.BaseDir, "saved-queries")
}
