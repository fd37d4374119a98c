package warmup

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

// Prometheus metrics for warmup retries.
var (
	warmupRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "config_cache_warmup_retries_total",
		Help: "Total number of warmup retry attempts",
	})

	warmupRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "config_cache_warmup_retry_exhausted_total",
		Help: "Total number of warmup keys that failed after every attempt",
	})
)

// ErrRetryExhausted is returned when all retry attempts are exhausted.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// shouldRetry reports whether err may succeed on another attempt. Misses
// and malformed keys or values are final.
func shouldRetry(err error) bool {
	return !errors.Is(err, cache.ErrCacheMiss) &&
		!errors.Is(err, cache.ErrInvalidKey) &&
		!errors.Is(err, cache.ErrInvalidEntry) &&
		!errors.Is(err, context.Canceled)
}

// retryWithBackoff executes fn with exponential backoff and ±20% jitter.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("Warmup lookup succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !shouldRetry(err) {
			return lastErr
		}
		if attempt >= config.MaxAttempts {
			break
		}

		warmupRetriesTotal.Inc()
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

		log.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying warmup lookup after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	warmupRetryExhaustedTotal.Inc()
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
