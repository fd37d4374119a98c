// Package volatile implements the in-process cache tier: an LRU map bounded
// by a soft byte budget. Contents are lost on restart.
package volatile

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

type item struct {
	key   string
	entry *cache.Entry
	size  int64
}

// Store is the volatile tier. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	budget int64
	usage  int64
	order  *list.List // front = most recently used
	items  map[string]*list.Element
}

var _ cache.Tier = (*Store)(nil)
var _ cache.Sizer = (*Store)(nil)

// New creates a volatile tier with the given byte budget. A non-positive
// budget disables eviction.
func New(budgetBytes int64) *Store {
	return &Store{
		budget: budgetBytes,
		order:  list.New(),
		items:  make(map[string]*list.Element),
	}
}

// Get returns a fresh entry and marks it most recently used. Expired
// entries are removed and reported as a miss.
func (s *Store) Get(_ context.Context, key string) (*cache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	it := el.Value.(*item)
	if it.entry.IsExpired() {
		s.remove(el)
		return nil, cache.ErrCacheMiss
	}

	s.order.MoveToFront(el)
	return it.entry.Clone(), nil
}

// Set stores value, evicting least recently used entries until the new
// entry fits. When the new entry alone exceeds the budget the last
// remaining entry is kept and the insert happens anyway.
func (s *Store) Set(_ context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	entry := cache.NewEntry(value, ttl)
	size, err := EntrySize(key, entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.remove(el)
	}

	if s.budget > 0 {
		for s.usage+size > s.budget && s.order.Len() > 0 {
			if s.order.Len() == 1 && size > s.budget {
				break
			}
			s.remove(s.order.Back())
			cache.CacheEvictions.WithLabelValues(string(cache.TierVolatile)).Inc()
		}
	}

	s.items[key] = s.order.PushFront(&item{key: key, entry: entry, size: size})
	s.usage += size
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.remove(el)
	}
	return nil
}

// Clear drops every entry.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order.Init()
	clear(s.items)
	s.usage = 0
	return nil
}

// Has reports whether a fresh entry exists for key.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, err := s.Get(ctx, key)
	return err == nil
}

// Len returns the number of stored entries, fresh or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Usage returns the estimated bytes held.
func (s *Store) Usage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Budget returns the configured byte budget.
func (s *Store) Budget() int64 {
	return s.budget
}

// Keys returns the stored keys from most to least recently used.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*item).key)
	}
	return keys
}

func (s *Store) remove(el *list.Element) {
	it := s.order.Remove(el).(*item)
	delete(s.items, it.key)
	s.usage -= it.size
}

// EntrySize estimates the bytes an entry occupies: the key plus its JSON
// serialisation.
func EntrySize(key string, entry *cache.Entry) (int64, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}
	return int64(len(key) + len(data)), nil
}
