package warmup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

var errFlaky = errors.New("temporarily unavailable")

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestWarmer_Summary(t *testing.T) {
	fetcher := FetcherFunc(func(_ context.Context, key string) (json.RawMessage, error) {
		switch key {
		case "calculations", "content":
			return json.RawMessage(`{}`), nil
		case "municipalities":
			return nil, cache.ErrCacheMiss
		default:
			return nil, errFlaky
		}
	})

	w := New(fetcher, Config{MaxConcurrency: 2, Timeout: time.Second, Retry: fastRetry()})
	summary, err := w.Warm(context.Background(), []string{"calculations", "content", "municipalities", "energy_prices"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Loaded)
	assert.Equal(t, 1, summary.Missing)
	assert.Equal(t, 1, summary.Failed)
	require.Contains(t, summary.Errors, "energy_prices")
	assert.ErrorIs(t, summary.Errors["energy_prices"], ErrRetryExhausted)
	assert.ErrorIs(t, summary.Errors["energy_prices"], errFlaky)
}

func TestWarmer_Empty(t *testing.T) {
	w := New(FetcherFunc(func(context.Context, string) (json.RawMessage, error) {
		t.Fatal("fetcher should not be called")
		return nil, nil
	}), DefaultConfig())

	summary, err := w.Warm(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Loaded+summary.Missing+summary.Failed)
}

func TestWarmer_BoundedConcurrency(t *testing.T) {
	var active, peak int32
	fetcher := FetcherFunc(func(context.Context, string) (json.RawMessage, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return json.RawMessage(`1`), nil
	})

	keys := make([]string, 20)
	for i := range keys {
		keys[i] = "content"
	}

	w := New(fetcher, Config{MaxConcurrency: 3, Timeout: time.Second})
	summary, err := w.Warm(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, 20, summary.Loaded)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestWarmer_RetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	calls := make(map[string]int)
	fetcher := FetcherFunc(func(_ context.Context, key string) (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		calls[key]++
		if calls[key] < 2 {
			return nil, errFlaky
		}
		return json.RawMessage(`true`), nil
	})

	w := New(fetcher, Config{MaxConcurrency: 1, Timeout: time.Second, Retry: fastRetry()})
	summary, err := w.Warm(context.Background(), []string{"feature_flags"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, 2, calls["feature_flags"])
}

func TestWarmer_MissesAreNotRetried(t *testing.T) {
	var calls int32
	fetcher := FetcherFunc(func(context.Context, string) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return nil, cache.ErrCacheMiss
	})

	w := New(fetcher, Config{Retry: fastRetry()})
	summary, err := w.Warm(context.Background(), []string{"nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Missing)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWarmer_PerKeyTimeout(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, _ string) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	w := New(fetcher, Config{MaxConcurrency: 1, Timeout: 5 * time.Millisecond, Retry: RetryConfig{MaxAttempts: 1}})
	summary, err := w.Warm(context.Background(), []string{"content"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.ErrorIs(t, summary.Errors["content"], context.DeadlineExceeded)
}

func TestWarmer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(FetcherFunc(func(context.Context, string) (json.RawMessage, error) {
		return json.RawMessage(`1`), nil
	}), DefaultConfig())

	summary, err := w.Warm(ctx, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Loaded)
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "transient", err: errFlaky, want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "miss", err: cache.ErrCacheMiss, want: false},
		{name: "invalid key", err: cache.ErrInvalidKey, want: false},
		{name: "invalid entry", err: cache.ErrInvalidEntry, want: false},
		{name: "cancelled", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRetry(tt.err))
		})
	}
}
