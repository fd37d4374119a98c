// Package remote connects the cache to the authoritative configuration
// store. It provides the PostgreSQL-backed Store and the two tiers that
// sit between the snapshot and the hardcoded defaults in the chain.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound indicates the store has no value for the requested key:
// the row is absent, the category table does not exist, or the category
// is empty.
var ErrNotFound = errors.New("remote value not found")

// Store is the authoritative configuration source.
type Store interface {
	// FetchDirect returns the value of one field, or the whole category as
	// a JSON object of field to value when field is empty.
	FetchDirect(ctx context.Context, category, field string) (json.RawMessage, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, category, field string) (json.RawMessage, error)

// FetchDirect calls f.
func (f StoreFunc) FetchDirect(ctx context.Context, category, field string) (json.RawMessage, error) {
	return f(ctx, category, field)
}
