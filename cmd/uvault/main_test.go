package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("missing config file should fall back to defaults, got %v", err)
	}
	if cfg == nil || cfg.Storage.Strategy == "" {
		t.Fatalf("fallback config not populated: %+v", cfg)
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uv.yaml")
	data := "storage:\n  strategy: weekly\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Storage.Strategy != "weekly" {
		t.Errorf("Strategy = %q, want weekly", cfg.Storage.Strategy)
	}
}

func TestLoadConfigSurfacesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uv.yaml")
	if err := os.WriteFile(path, []byte("storage: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadConfig(path); err == nil {
		t.Fatal("malformed config did not error")
	}
}
