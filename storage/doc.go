// Package storage implements the file-backed usage history store.
//
// Points are grouped into time-bounded buckets keyed by the configured
// bucket strategy. Each bucket is one JSON file (optionally gzip
// compressed) holding its points sorted ascending by timestamp, and an
// index.json catalog maps bucket keys to descriptors. The engine assumes
// a single process owns a storage directory at a time; concurrent external
// writers lose updates on the whole-file rewrite.
package storage
