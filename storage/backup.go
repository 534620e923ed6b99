package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/types"
)

// backupManifest records what a backup directory contains. Restore
// validates it before touching the live store.
type backupManifest struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	Strategy  string `json:"strategy"`
	Buckets   int    `json:"buckets"`
	Version   string `json:"version"`
}

const manifestName = "manifest.json"

// Backup copies the bucket directory tree and index into path and writes a
// manifest alongside them.
func (e *Engine) Backup(ctx context.Context, path string) types.StorageOperationResult {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.ready(ctx); err != nil {
		return failure(start, err)
	}

	if err := os.MkdirAll(filepath.Join(path, "buckets"), 0o755); err != nil {
		return failure(start, errs.Wrap(err, "backup"))
	}

	copied, err := copyDir(ctx, e.cfg.BucketDir(), filepath.Join(path, "buckets"))
	if err != nil {
		return failure(start, errs.Wrapf(errs.ErrBackupFailed, "buckets: %v", err))
	}

	if _, err := os.Stat(e.cfg.IndexPath()); err == nil {
		if err := copyFile(e.cfg.IndexPath(), filepath.Join(path, "index.json")); err != nil {
			return failure(start, errs.Wrapf(errs.ErrBackupFailed, "index: %v", err))
		}
	}

	manifest := backupManifest{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UnixMilli(),
		Strategy:  e.strategy.String(),
		Buckets:   e.index.len(),
		Version:   indexVersion,
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return failure(start, errs.Wrap(errs.ErrBackupFailed, err.Error()))
	}
	if err := os.WriteFile(filepath.Join(path, manifestName), data, 0o644); err != nil {
		return failure(start, errs.Wrapf(errs.ErrBackupFailed, "manifest: %v", err))
	}

	e.log.Info("backup written", "path", path, "id", manifest.ID, "files", copied)
	return success(start, copied)
}

// Restore replaces the live store with the contents of a backup directory
// and reloads the index. The backup's bucket strategy must match this
// engine's.
func (e *Engine) Restore(ctx context.Context, path string) types.StorageOperationResult {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(ctx); err != nil {
		return failure(start, err)
	}

	manifest, err := readManifest(filepath.Join(path, manifestName))
	if err != nil {
		return failure(start, err)
	}
	if manifest.Strategy != e.strategy.String() {
		return failure(start, errs.Wrapf(errs.ErrBadManifest,
			"backup strategy %q, store strategy %q", manifest.Strategy, e.strategy))
	}

	// Clear current bucket files so the restore is a replacement, not a
	// merge.
	if err := os.RemoveAll(e.cfg.BucketDir()); err != nil {
		return failure(start, errs.Wrapf(errs.ErrRestoreFailed, "clear buckets: %v", err))
	}
	if err := os.MkdirAll(e.cfg.BucketDir(), 0o755); err != nil {
		return failure(start, errs.Wrapf(errs.ErrRestoreFailed, "recreate buckets: %v", err))
	}

	copied, err := copyDir(ctx, filepath.Join(path, "buckets"), e.cfg.BucketDir())
	if err != nil {
		return failure(start, errs.Wrapf(errs.ErrRestoreFailed, "buckets: %v", err))
	}

	if err := copyFile(filepath.Join(path, "index.json"), e.cfg.IndexPath()); err != nil {
		return failure(start, errs.Wrapf(errs.ErrRestoreFailed, "index: %v", err))
	}

	index := newBucketIndex(e.cfg.IndexPath())
	if err := index.load(); err != nil {
		return failure(start, err)
	}
	e.index = index

	e.log.Info("backup restored", "path", path, "id", manifest.ID, "files", copied)
	return success(start, copied)
}

func readManifest(path string) (backupManifest, error) {
	var m backupManifest

	data, err := os.ReadFile(path)
	if err != nil {
		return m, errs.Wrapf(errs.ErrBadManifest, "read manifest: %v", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errs.Corrupt(path, err)
	}
	if m.ID == "" || m.Strategy == "" {
		return m, errs.Wrap(errs.ErrBadManifest, "manifest missing id or strategy")
	}

	return m, nil
}

// copyDir copies every regular file in src into dst (flat; bucket
// directories hold no subdirectories). Returns the file count.
func copyDir(ctx context.Context, src, dst string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	copied := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return copied, err
		}
		copied++
	}

	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}

	return out.Close()
}
