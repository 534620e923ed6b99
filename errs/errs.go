// Package errs holds the sentinel errors shared by the storage and query
// engines, plus small helpers for classifying and wrapping them.
package errs

import (
	"errors"
	"fmt"
)

var (
	// Not found conditions. A missing bucket file is NOT an error; these
	// cover catalog-level lookups.
	ErrNotFound      = errors.New("not found")
	ErrIndexNotFound = errors.New("index not found")
	ErrQueryNotFound = errors.New("saved query not found")

	// Corruption: a bucket or index file that exists but does not decode.
	ErrCorruptData = errors.New("corrupt data")

	// Configuration errors. Raised eagerly at the call site that needs
	// the setting, never deferred.
	ErrUnsupportedStrategy = errors.New("unsupported bucket strategy")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrInvalidRange        = errors.New("invalid time range")
	ErrInvalidFilter       = errors.New("invalid filter")

	// State errors.
	ErrNotInitialized = errors.New("engine not initialized")
	ErrClosed         = errors.New("engine closed")

	// Backup/restore errors.
	ErrBackupFailed  = errors.New("backup failed")
	ErrRestoreFailed = errors.New("restore failed")
	ErrBadManifest   = errors.New("invalid backup manifest")
)

// Is is a convenience wrapper for errors.Is.
var Is = errors.Is

// As is a convenience wrapper for errors.As.
var As = errors.As

// IsNotFound reports whether err is a catalog not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrIndexNotFound) ||
		errors.Is(err, ErrQueryNotFound)
}

// IsCorruption reports whether err indicates undecodable persisted data.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruptData)
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrUnsupportedStrategy) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidFilter)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Corrupt builds a corruption error for a specific file.
func Corrupt(path string, cause error) error {
	return fmt.Errorf("%s: %v: %w", path, cause, ErrCorruptData)
}
