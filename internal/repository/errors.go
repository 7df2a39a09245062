package repository

import "errors"

// Cache errors. Entity lookup failures are reported with the sentinel
// errors in the domain package; only cache-layer conditions live here.
var (
	// ErrCacheMiss indicates the key was not found in cache. Callers fall
	// back to the authoritative repository on a miss.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable indicates the cache backend could not be
	// reached. Wraps the underlying transport error.
	ErrCacheUnavailable = errors.New("cache unavailable")
)
