// Package client provides the application-facing configuration reader:
// bounded-latency lookups over the tiered cache with typed accessors and
// caller-supplied fallbacks.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

// Prometheus metrics for client lookups.
var (
	clientLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "config_client_lookups_total",
		Help: "Total configuration lookups by outcome",
	}, []string{"outcome"})

	clientLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "config_client_lookup_duration_seconds",
		Help:    "Configuration lookup duration as seen by callers",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2},
	})
)

// Lookup outcomes.
const (
	outcomeHit      = "hit"
	outcomeMiss     = "miss"
	outcomeTimeout  = "timeout"
	outcomeFallback = "fallback"
)

// Config holds the client configuration.
type Config struct {
	// Cache is the manager every lookup goes through (REQUIRED)
	Cache *cache.Manager

	// Timeout bounds a single lookup. Zero disables the bound.
	Timeout time.Duration

	// Logger defaults to the global logger tagged with the component
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with a 2 second lookup bound.
func DefaultConfig(manager *cache.Manager) Config {
	return Config{
		Cache:   manager,
		Timeout: 2 * time.Second,
	}
}

// Client reads configuration values.
type Client struct {
	cache   *cache.Manager
	timeout time.Duration
	logger  zerolog.Logger

	// flight collapses concurrent bounded lookups of one key, so callers
	// that time out leave at most one lookup per key running.
	flight singleflight.Group
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "config-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		cache:   cfg.Cache,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Get resolves key through the cache. When the lookup outlives the
// configured timeout it returns a *TimeoutError, which matches
// cache.ErrCacheMiss; the lookup itself keeps running and still promotes
// whatever it finds. Concurrent callers asking for the same key share that
// lookup, so a hanging backend holds one goroutine per distinct key.
func (c *Client) Get(ctx context.Context, key string) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		clientLookupDuration.Observe(time.Since(start).Seconds())
	}()

	if c.timeout <= 0 {
		value, err := c.cache.Get(ctx, key)
		c.count(err)
		return value, err
	}

	done := c.flight.DoChan(key, func() (any, error) {
		return c.cache.Get(context.WithoutCancel(ctx), key)
	})

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		c.count(r.Err)
		if r.Err != nil {
			return nil, r.Err
		}
		return cache.CloneValue(r.Val.(json.RawMessage)), nil
	case <-timer.C:
		clientLookupsTotal.WithLabelValues(outcomeTimeout).Inc()
		c.logger.Warn().
			Str("key", key).
			Dur("timeout", c.timeout).
			Msg("Configuration lookup timed out")
		return nil, &TimeoutError{Key: key, Timeout: c.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) count(err error) {
	switch {
	case err == nil:
		clientLookupsTotal.WithLabelValues(outcomeHit).Inc()
	case errors.Is(err, cache.ErrCacheMiss):
		clientLookupsTotal.WithLabelValues(outcomeMiss).Inc()
	}
}

// Decode resolves key and unmarshals the value into out. Values shaped
// {"value": x, ...} are unwrapped when out does not accept the whole
// object.
func (c *Client) Decode(ctx context.Context, key string, out any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := decodeValue(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", cache.ErrInvalidEntry, key, err)
	}
	return nil
}

// Float returns the number stored at key, or fallback when the key cannot
// be resolved or is not a number.
func (c *Client) Float(ctx context.Context, key string, fallback float64) float64 {
	var v float64
	if err := c.Decode(ctx, key, &v); err != nil {
		c.fallback(key, err)
		return fallback
	}
	return v
}

// String returns the string stored at key, or fallback.
func (c *Client) String(ctx context.Context, key string, fallback string) string {
	var v string
	if err := c.Decode(ctx, key, &v); err != nil {
		c.fallback(key, err)
		return fallback
	}
	return v
}

// Bool returns the boolean stored at key, or fallback.
func (c *Client) Bool(ctx context.Context, key string, fallback bool) bool {
	var v bool
	if err := c.Decode(ctx, key, &v); err != nil {
		c.fallback(key, err)
		return fallback
	}
	return v
}

func (c *Client) fallback(key string, err error) {
	clientLookupsTotal.WithLabelValues(outcomeFallback).Inc()
	c.logger.Debug().Err(err).Str("key", key).Msg("Using caller fallback")
}

// decodeValue unmarshals raw into out, retrying with the "value" member of
// an object when the direct decode fails.
func decodeValue(raw json.RawMessage, out any) error {
	err := json.Unmarshal(raw, out)
	if err == nil {
		return nil
	}

	var wrapped struct {
		Value json.RawMessage `json:"value"`
	}
	if json.Unmarshal(raw, &wrapped) != nil || wrapped.Value == nil {
		return err
	}
	return json.Unmarshal(wrapped.Value, out)
}

// Cache returns the underlying manager.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}
