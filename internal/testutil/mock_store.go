// Package testutil provides scriptable fakes for cache tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/remote"
)

// MockStore is a configurable remote store for testing.
type MockStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
	errs   map[string]error
	delay  time.Duration

	// Tracking
	requests int
	lastKey  string
}

var _ remote.Store = (*MockStore)(nil)

// NewMockStore creates an empty mock store. Every key is not-found until
// SetValue is called.
func NewMockStore() *MockStore {
	return &MockStore{
		values: make(map[string]json.RawMessage),
		errs:   make(map[string]error),
	}
}

// SetValue configures the value returned for key.
func (m *MockStore) SetValue(key string, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = json.RawMessage(value)
	delete(m.errs, key)
}

// SetError makes every fetch of key fail with err.
func (m *MockStore) SetError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[key] = err
}

// SetDelay makes every fetch block for d or until the context ends.
func (m *MockStore) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FetchDirect implements remote.Store.
func (m *MockStore) FetchDirect(ctx context.Context, category, field string) (json.RawMessage, error) {
	key := policy.JoinKey(category, field)

	m.mu.Lock()
	m.requests++
	m.lastKey = key
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	v, ok := m.values[key]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return cache.CloneValue(v), nil
}

// GetRequestCount returns the number of fetches made.
func (m *MockStore) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests
}

// LastKey returns the key of the most recent fetch.
func (m *MockStore) LastKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastKey
}

// Reset clears tracking counters.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = 0
	m.lastKey = ""
}
