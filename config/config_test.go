package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quellen/usagevault/errs"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing storage dir",
			mutate:  func(c *Config) { c.Storage.BaseDir = "" },
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "bad strategy",
			mutate:  func(c *Config) { c.Storage.Strategy = "hourly" },
			wantErr: errs.ErrUnsupportedStrategy,
		},
		{
			name:    "compression too high",
			mutate:  func(c *Config) { c.Storage.CompressionLevel = 10 },
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "compression too low",
			mutate:  func(c *Config) { c.Storage.CompressionLevel = 0 },
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Storage.Retention = -time.Hour },
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "retention shorter than compaction age",
			mutate:  func(c *Config) { c.Storage.Retention = time.Hour },
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "shared base dir",
			mutate:  func(c *Config) { c.Query.BaseDir = c.Storage.BaseDir },
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "cache without capacity",
			mutate:  func(c *Config) { c.Query.Cache.MaxSize = 0 },
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:   "disabled cache skips cache checks",
			mutate: func(c *Config) { c.Query.Cache.Enabled = false; c.Query.Cache.MaxSize = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errs.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
storage:
  base_dir: ` + filepath.Join(dir, "store") + `
  bucket_strategy: weekly
query:
  base_dir: ` + filepath.Join(dir, "queries") + `
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Strategy != "weekly" {
		t.Errorf("strategy = %q, want weekly", cfg.Storage.Strategy)
	}
	if cfg.Storage.CompressionLevel != 6 {
		t.Errorf("compression level default = %d, want 6", cfg.Storage.CompressionLevel)
	}
	if cfg.Query.Cache.TTL != 5*time.Minute {
		t.Errorf("cache ttl default = %v, want 5m", cfg.Query.Cache.TTL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errs.Is(err, os.ErrNotExist) {
		t.Errorf("error should unwrap to os.ErrNotExist, got %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.BaseDir = filepath.Join(dir, "store")
	cfg.Query.BaseDir = filepath.Join(dir, "queries")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	for _, d := range []string{
		cfg.Storage.BucketDir(),
		cfg.Storage.BackupDir(),
		cfg.Query.IndexDir(),
		cfg.Query.CacheDir(),
		cfg.Query.SavedQueryDir(),
	} {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("directory %s missing: %v", d, err)
		}
	}
}
