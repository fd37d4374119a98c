package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
)

// DefaultNegativeTTL is how long a not-found answer is remembered.
const DefaultNegativeTTL = 30 * time.Second

// DirectOptions configures a DirectTier.
type DirectOptions struct {
	// NegativeTTL bounds how long not-found keys skip the store.
	// Zero uses DefaultNegativeTTL; negative disables negative caching.
	NegativeTTL time.Duration

	// PolicyFor supplies the TTL stamped on fetched entries.
	PolicyFor func(key string) policy.Policy

	Logger *zerolog.Logger
}

// DirectTier queries the authoritative store on every lookup.
// Values are never stored here; Set is a no-op.
type DirectTier struct {
	store     Store
	policyFor func(string) policy.Policy
	logger    zerolog.Logger
	negative  *ttlcache.Cache[string, struct{}]
}

var _ cache.Tier = (*DirectTier)(nil)

// NewDirectTier wraps store as a cache tier. Call Close to stop the
// negative cache janitor.
func NewDirectTier(store Store, opts DirectOptions) *DirectTier {
	if store == nil {
		panic("remote: store is required")
	}

	t := &DirectTier{
		store:     store,
		policyFor: opts.PolicyFor,
	}
	if t.policyFor == nil {
		t.policyFor = policy.ForKey
	}
	if opts.Logger != nil {
		t.logger = *opts.Logger
	} else {
		t.logger = log.With().Str("component", "remote-direct").Logger()
	}

	ttl := opts.NegativeTTL
	if ttl == 0 {
		ttl = DefaultNegativeTTL
	}
	if ttl > 0 {
		t.negative = ttlcache.New(
			ttlcache.WithTTL[string, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
		go t.negative.Start()
	}
	return t
}

// Close stops background work.
func (t *DirectTier) Close() {
	if t.negative != nil {
		t.negative.Stop()
	}
}

// Get fetches key from the store. Not-found answers are remembered for the
// negative TTL and reported as cache misses.
func (t *DirectTier) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if t.negative != nil && t.negative.Has(key) {
		return nil, cache.ErrCacheMiss
	}

	category, field := policy.SplitKey(key)
	start := time.Now()
	value, err := t.store.FetchDirect(ctx, category, field)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if t.negative != nil {
				t.negative.Set(key, struct{}{}, ttlcache.DefaultTTL)
			}
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("remote fetch %s: %w", key, err)
	}
	if !json.Valid(value) {
		return nil, fmt.Errorf("%w: remote value for %s is not valid JSON", cache.ErrInvalidEntry, key)
	}

	t.logger.Debug().
		Str("key", key).
		Dur("duration", time.Since(start)).
		Msg("Fetched value from remote store")

	return &cache.Entry{
		Value:     cache.CloneValue(value),
		WrittenAt: time.Now(),
		TTL:       t.policyFor(key).TTL,
	}, nil
}

// Set is a no-op: the cache never writes to the authoritative store.
func (t *DirectTier) Set(_ context.Context, key string, _ json.RawMessage, _ time.Duration) error {
	t.logger.Warn().Str("key", key).Msg("Ignoring write to remote store")
	return nil
}

// Delete forgets any remembered not-found answer for key.
func (t *DirectTier) Delete(_ context.Context, key string) error {
	if t.negative != nil {
		t.negative.Delete(key)
	}
	return nil
}

// Clear forgets every remembered not-found answer.
func (t *DirectTier) Clear(_ context.Context) error {
	if t.negative != nil {
		t.negative.DeleteAll()
	}
	return nil
}

// Has reports whether the store currently holds key.
func (t *DirectTier) Has(ctx context.Context, key string) bool {
	_, err := t.Get(ctx, key)
	return err == nil
}
