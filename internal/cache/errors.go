package cache

import "errors"

// Sentinel errors for the cache package.
var (
	// ErrLocked indicates another process holds the cache directory.
	ErrLocked = errors.New("cache directory locked by another process")

	// ErrTooLarge indicates an entry bigger than the whole cache budget.
	ErrTooLarge = errors.New("entry exceeds cache capacity")

	// ErrSchemaMismatch indicates a cache database from another version.
	ErrSchemaMismatch = errors.New("cache schema version mismatch")
)
