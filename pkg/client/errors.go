package client

import (
	"fmt"
	"time"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

// TimeoutError is returned when a lookup exceeds the client timeout.
// It unwraps to cache.ErrCacheMiss so callers treat it as absence.
type TimeoutError struct {
	Key     string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lookup of %s exceeded %s: %v", e.Key, e.Timeout, cache.ErrCacheMiss)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TimeoutError) Unwrap() error {
	return cache.ErrCacheMiss
}
