package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
)

// Lookuper reads from a cache maintained in front of the remote store,
// such as an edge or CDN cache. It returns ErrNotFound for absent keys.
type Lookuper interface {
	Lookup(ctx context.Context, key string) (json.RawMessage, error)
}

// CacheTier is the remote-cache position of the chain. Without a Lookuper
// it always misses.
type CacheTier struct {
	lookup    Lookuper
	policyFor func(string) policy.Policy
}

var _ cache.Tier = (*CacheTier)(nil)

// NewCacheTier creates the remote-cache tier. lookup may be nil.
func NewCacheTier(lookup Lookuper) *CacheTier {
	return &CacheTier{lookup: lookup, policyFor: policy.ForKey}
}

// Get implements cache.Tier.
func (t *CacheTier) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if t.lookup == nil {
		return nil, cache.ErrCacheMiss
	}

	value, err := t.lookup.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("remote cache lookup %s: %w", key, err)
	}
	if !json.Valid(value) {
		return nil, fmt.Errorf("%w: remote cache value for %s is not valid JSON", cache.ErrInvalidEntry, key)
	}
	return &cache.Entry{
		Value:     cache.CloneValue(value),
		WrittenAt: time.Now(),
		TTL:       t.policyFor(key).TTL,
	}, nil
}

// Set is a no-op.
func (t *CacheTier) Set(context.Context, string, json.RawMessage, time.Duration) error {
	return nil
}

// Delete is a no-op.
func (t *CacheTier) Delete(context.Context, string) error {
	return nil
}

// Clear is a no-op.
func (t *CacheTier) Clear(context.Context) error {
	return nil
}

// Has implements cache.Tier.
func (t *CacheTier) Has(ctx context.Context, key string) bool {
	_, err := t.Get(ctx, key)
	return err == nil
}
