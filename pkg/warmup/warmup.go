package warmup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

// Config holds warmer configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel lookups
	MaxConcurrency int
	// Timeout per key lookup
	Timeout time.Duration
	// Retry controls retries of transient failures
	Retry RetryConfig
}

// DefaultConfig returns the configuration used at service start
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        5 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// Fetcher resolves a single key. *client.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, key string) (json.RawMessage, error)

// Get calls f.
func (f FetcherFunc) Get(ctx context.Context, key string) (json.RawMessage, error) {
	return f(ctx, key)
}

// Outcome classifies the result of warming one key.
type Outcome string

const (
	OutcomeLoaded  Outcome = "loaded"
	OutcomeMissing Outcome = "missing"
	OutcomeFailed  Outcome = "failed"
)

// Result represents the result of warming a single key
type Result struct {
	Key     string
	Outcome Outcome
	Error   error
}

// Summary aggregates the results of one Warm call.
type Summary struct {
	Loaded   int
	Missing  int
	Failed   int
	Errors   map[string]error
	Duration time.Duration
}

// Warmer preloads keys through the cache so later lookups hit a fast tier.
type Warmer struct {
	fetcher Fetcher
	config  Config
}

// New creates a warmer
func New(fetcher Fetcher, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryConfig()
	}

	return &Warmer{
		fetcher: fetcher,
		config:  config,
	}
}

// Warm resolves every key with a bounded worker pool. Misses are expected
// and counted, not returned; only context cancellation is an error.
func (w *Warmer) Warm(ctx context.Context, keys []string) (Summary, error) {
	start := time.Now()
	summary := Summary{Errors: make(map[string]error)}

	if len(keys) == 0 {
		return summary, nil
	}

	log.Info().
		Int("keys", len(keys)).
		Int("workers", w.config.MaxConcurrency).
		Msg("Starting cache warmup")

	keyQueue := make(chan string, len(keys))
	for _, key := range keys {
		keyQueue <- key
	}
	close(keyQueue)

	results := make(chan Result, len(keys))

	var wg sync.WaitGroup
	workers := min(w.config.MaxConcurrency, len(keys))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go w.worker(ctx, keyQueue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		switch result.Outcome {
		case OutcomeLoaded:
			summary.Loaded++
		case OutcomeMissing:
			summary.Missing++
		default:
			summary.Failed++
			summary.Errors[result.Key] = result.Error
		}
	}
	summary.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		log.Warn().
			Err(err).
			Int("loaded", summary.Loaded).
			Int("total", len(keys)).
			Msg("Warmup interrupted - returning partial results")
		return summary, err
	}

	log.Info().
		Int("loaded", summary.Loaded).
		Int("missing", summary.Missing).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Warmup complete")

	return summary, nil
}

// worker processes keys from the queue
func (w *Warmer) worker(ctx context.Context, keyQueue <-chan string, results chan<- Result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for key := range keyQueue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("keys_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		results <- w.warmKey(ctx, key)
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("keys_processed", processed).
			Msg("Worker completed")
	}
}

func (w *Warmer) warmKey(ctx context.Context, key string) Result {
	err := retryWithBackoff(ctx, w.config.Retry, func() error {
		keyCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
		_, err := w.fetcher.Get(keyCtx, key)
		return err
	})

	switch {
	case err == nil:
		return Result{Key: key, Outcome: OutcomeLoaded}
	case errors.Is(err, cache.ErrCacheMiss):
		return Result{Key: key, Outcome: OutcomeMissing}
	default:
		log.Warn().Err(err).Str("key", key).Msg("Warmup lookup failed")
		return Result{Key: key, Outcome: OutcomeFailed, Error: err}
	}
}
