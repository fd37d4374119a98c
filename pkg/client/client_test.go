package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdvardGK/skiplumxge-configcache/internal/testutil"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/defaults"
)

// slowTier blocks every lookup until release is closed.
type slowTier struct {
	*testutil.MockTier
	release chan struct{}
	calls   atomic.Int32
}

func (s *slowTier) Get(ctx context.Context, key string) (*cache.Entry, error) {
	s.calls.Add(1)
	<-s.release
	return s.MockTier.Get(ctx, key)
}

func quietLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestManager(t *testing.T, volatile cache.Tier) *cache.Manager {
	t.Helper()
	m := cache.NewManager(cache.Options{
		Tiers: map[cache.TierID]cache.Tier{
			cache.TierVolatile:  volatile,
			cache.TierHardcoded: defaults.NewTier(),
		},
		Logger: quietLogger(),
	})
	t.Cleanup(m.Wait)
	return m
}

func TestNew_Validation(t *testing.T) {
	manager := newTestManager(t, testutil.NewMockTier())

	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      Config{Cache: manager, Timeout: time.Second},
			expectError: false,
		},
		{
			name:        "no timeout",
			config:      Config{Cache: manager},
			expectError: false,
		},
		{
			name:        "nil cache",
			config:      Config{Timeout: time.Second},
			expectError: true,
			errorMsg:    "cache manager is required",
		},
		{
			name:        "negative timeout",
			config:      Config{Cache: manager, Timeout: -time.Second},
			expectError: true,
			errorMsg:    "timeout must be >= 0 (got -1s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	manager := newTestManager(t, testutil.NewMockTier())
	cfg := DefaultConfig(manager)

	if cfg.Cache != manager {
		t.Error("Cache not set")
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Timeout)
	}
}

func TestClient_Get(t *testing.T) {
	volatile := testutil.NewMockTier()
	volatile.Put("content:title", `"Energirapport"`, time.Hour)
	client, err := New(Config{Cache: newTestManager(t, volatile), Timeout: time.Second, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	value, err := client.Get(context.Background(), "content:title")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(value) != `"Energirapport"` {
		t.Errorf("Get() = %s, want %q", value, `"Energirapport"`)
	}

	_, err = client.Get(context.Background(), "content:missing")
	if !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestClient_GetTimeout(t *testing.T) {
	slow := &slowTier{MockTier: testutil.NewMockTier(), release: make(chan struct{})}
	slow.Put("content:title", `"late"`, time.Hour)
	manager := newTestManager(t, slow)

	client, err := New(Config{Cache: manager, Timeout: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	_, err = client.Get(context.Background(), "content:title")
	elapsed := time.Since(start)
	close(slow.release)

	if !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Get() error = %T, want *TimeoutError", err)
	}
	if timeoutErr.Key != "content:title" {
		t.Errorf("TimeoutError.Key = %q, want content:title", timeoutErr.Key)
	}
	if elapsed > time.Second {
		t.Errorf("Get() took %v, want about 20ms", elapsed)
	}
}

func TestClient_TimedOutCallersShareOneLookup(t *testing.T) {
	slow := &slowTier{MockTier: testutil.NewMockTier(), release: make(chan struct{})}
	slow.Put("content:title", `"late"`, time.Hour)
	manager := newTestManager(t, slow)

	client, err := New(Config{Cache: manager, Timeout: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(context.Background(), "content:title"); !errors.Is(err, cache.ErrCacheMiss) {
				t.Errorf("Get() error = %v, want ErrCacheMiss", err)
			}
		}()
	}
	wg.Wait()

	if n := slow.calls.Load(); n > 1 {
		t.Errorf("backend lookups while blocked = %d, want at most 1", n)
	}

	close(slow.release)
	deadline := time.Now().Add(time.Second)
	for {
		value, err := client.Get(context.Background(), "content:title")
		if err == nil {
			if string(value) != `"late"` {
				t.Errorf("Get() = %s, want \"late\"", value)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Get() still failing after release: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClient_GetCancelled(t *testing.T) {
	slow := &slowTier{MockTier: testutil.NewMockTier(), release: make(chan struct{})}
	defer close(slow.release)
	client, err := New(Config{Cache: newTestManager(t, slow), Timeout: time.Minute, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Get(ctx, "content:title")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestClient_TypedAccessors(t *testing.T) {
	volatile := testutil.NewMockTier()
	volatile.Put("calculations:vat", `25`, time.Hour)
	volatile.Put("content:title", `"Energirapport"`, time.Hour)
	volatile.Put("content:broken", `[1,2]`, time.Hour)
	client, err := New(Config{Cache: newTestManager(t, volatile), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	floatTests := []struct {
		key      string
		fallback float64
		want     float64
	}{
		{key: "calculations:vat", fallback: 0, want: 25},
		{key: "calculations:bra_adjustment", fallback: 0, want: 8}, // {"value":8,...} from defaults
		{key: "calculations:missing", fallback: 1.5, want: 1.5},
		{key: "content:title", fallback: 2, want: 2},
	}
	for _, tt := range floatTests {
		if got := client.Float(ctx, tt.key, tt.fallback); got != tt.want {
			t.Errorf("Float(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}

	if got := client.String(ctx, "content:title", "x"); got != "Energirapport" {
		t.Errorf("String() = %q, want Energirapport", got)
	}
	if got := client.String(ctx, "content:broken", "fallback"); got != "fallback" {
		t.Errorf("String() = %q, want fallback", got)
	}
	if got := client.Bool(ctx, "feature_flags:show_3d_model", false); !got {
		t.Error("Bool(feature_flags:show_3d_model) = false, want true")
	}
	if got := client.Bool(ctx, "feature_flags:unknown", true); !got {
		t.Error("Bool(feature_flags:unknown) should use fallback")
	}
}

func TestClient_Decode(t *testing.T) {
	client, err := New(Config{Cache: newTestManager(t, testutil.NewMockTier()), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var setting struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	}
	if err := client.Decode(context.Background(), "calculations:grid_rent", &setting); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if setting.Value != 0.5 || setting.Unit != "kr/kWh" {
		t.Errorf("Decode() = %+v", setting)
	}

	var n int
	err = client.Decode(context.Background(), "translations:app_title", &n)
	if !errors.Is(err, cache.ErrInvalidEntry) {
		t.Errorf("Decode() error = %v, want ErrInvalidEntry", err)
	}
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "bare", raw: `3.5`, want: 3.5},
		{name: "wrapped", raw: `{"value":7,"unit":"years"}`, want: 7},
		{name: "no value member", raw: `{"amount":7}`, wantErr: true},
		{name: "wrong type", raw: `"seven"`, wantErr: true},
		{name: "wrapped wrong type", raw: `{"value":"seven"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got float64
			err := decodeValue(json.RawMessage(tt.raw), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("decodeValue() = %v, want %v", got, tt.want)
			}
		})
	}
}
