package storage

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/types"
)

// compressedPath returns the on-disk path for a bucket, accounting for the
// compression flag. A compressed and uncompressed file for the same key
// must never coexist; compaction removes the plain file after writing the
// gzip one.
func compressedPath(b *types.StorageBucket) string {
	if b.Compressed {
		return b.FilePath + ".gz"
	}
	return b.FilePath
}

// readBucketFile decodes a bucket's point list. A missing file yields an
// empty list, never an error. Content that exists but does not decode is
// classified as corruption.
func readBucketFile(b *types.StorageBucket) ([]types.UsageDataPoint, error) {
	path := compressedPath(b)

	data, err := os.ReadFile(path)
	if err != nil {
		if errs.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bucket %s: %w", path, err)
	}

	if b.Compressed {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errs.Corrupt(path, err)
		}
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, errs.Corrupt(path, err)
		}
		if err := zr.Close(); err != nil {
			return nil, errs.Corrupt(path, err)
		}
	}

	var points []types.UsageDataPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, errs.Corrupt(path, err)
	}

	return points, nil
}

// writeBucketFile rewrites a bucket's full point list. This is the
// whole-file rewrite the storage contract is built on: best-effort, no
// partial-write recovery.
func writeBucketFile(b *types.StorageBucket, points []types.UsageDataPoint) error {
	if points == nil {
		points = []types.UsageDataPoint{}
	}

	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("encode bucket: %w", err)
	}

	if b.Compressed {
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzipLevel(b.CompressionLevel))
		if err != nil {
			return fmt.Errorf("gzip writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("gzip bucket: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("gzip close: %w", err)
		}
		data = buf.Bytes()
	}

	if err := os.WriteFile(compressedPath(b), data, 0o644); err != nil {
		return fmt.Errorf("write bucket %s: %w", compressedPath(b), err)
	}

	return nil
}

// gzipLevel clamps a configured level into the range gzip accepts.
func gzipLevel(level int) int {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		return gzip.DefaultCompression
	}
	return level
}
