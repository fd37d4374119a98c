package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

// MockTier is an in-memory cache.Tier whose operations can be made to fail.
type MockTier struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry

	// Err, when set, is returned by every operation.
	Err error

	gets     int
	writeErr error
	sets     map[string]int
	lastTTL map[string]time.Duration
}

var _ cache.Tier = (*MockTier)(nil)

// NewMockTier creates an empty tier.
func NewMockTier() *MockTier {
	return &MockTier{
		entries: make(map[string]*cache.Entry),
		sets:    make(map[string]int),
		lastTTL: make(map[string]time.Duration),
	}
}

// Put stores an entry directly, bypassing tracking.
func (m *MockTier) Put(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = cache.NewEntry(json.RawMessage(value), ttl)
}

// PutEntry stores e as is, which lets tests plant stale entries.
func (m *MockTier) PutEntry(key string, e *cache.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e.Clone()
}

// Fail makes every operation return err; nil restores normal behavior.
func (m *MockTier) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// FailWrites makes Set return err without storing; reads are unaffected.
func (m *MockTier) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Get implements cache.Tier.
func (m *MockTier) Get(_ context.Context, key string) (*cache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.entries[key]
	if !ok || e.IsExpired() {
		return nil, cache.ErrCacheMiss
	}
	return e.Clone(), nil
}

// Set implements cache.Tier.
func (m *MockTier) Set(_ context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.entries[key] = cache.NewEntry(value, ttl)
	m.sets[key]++
	m.lastTTL[key] = ttl
	return nil
}

// Delete implements cache.Tier.
func (m *MockTier) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.entries, key)
	return nil
}

// Clear implements cache.Tier.
func (m *MockTier) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = make(map[string]*cache.Entry)
	return nil
}

// Has implements cache.Tier.
func (m *MockTier) Has(ctx context.Context, key string) bool {
	_, err := m.Get(ctx, key)
	return err == nil
}

// Len implements cache.Sizer.
func (m *MockTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Usage implements cache.Sizer.
func (m *MockTier) Usage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.entries {
		n += int64(len(k) + len(e.Value))
	}
	return n
}

// GetCount returns the number of Get calls.
func (m *MockTier) GetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// SetCount returns how many times key was written.
func (m *MockTier) SetCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[key]
}

// LastTTL returns the TTL of the most recent write of key.
func (m *MockTier) LastTTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTTL[key]
}
