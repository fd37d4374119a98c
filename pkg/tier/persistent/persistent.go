// Package persistent implements the durable cache tier on Redis.
//
// Entries live under a fixed key prefix so Clear never touches unrelated
// data sharing the same database. The payload is the JSON entry
// {"value", "writtenAt" (unix ms), "timeToLive" (ms)}. The tier keeps an
// in-process index of entry sizes and write times so it can enforce its
// byte budget without scanning Redis on every write.
package persistent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

// DefaultPrefix namespaces every key written by this tier.
const DefaultPrefix = "skiplum:cfg:"

// purgeFraction is the share of entries dropped, oldest first, when the
// budget or the storage quota is exhausted.
const purgeFraction = 4

// scanBatch is the COUNT hint for SCAN.
const scanBatch = 100

// Options configures the persistent tier.
type Options struct {
	// Prefix namespaces keys (default DefaultPrefix)
	Prefix string

	// BudgetBytes bounds the estimated bytes held. Zero disables the budget.
	BudgetBytes int64

	// MaxAge drops entries older than this on startup regardless of TTL.
	MaxAge time.Duration

	// Logger defaults to the global logger tagged with the component.
	Logger *zerolog.Logger
}

type storedEntry struct {
	Value      json.RawMessage `json:"value"`
	WrittenAt  int64           `json:"writtenAt"`
	TimeToLive int64           `json:"timeToLive"`
}

type indexEntry struct {
	size      int64
	writtenAt time.Time
	ttl       time.Duration
}

// Store is the persistent tier. It assumes it is the only writer under its
// prefix.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	budget int64
	maxAge time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	index map[string]indexEntry
	usage int64
}

var _ cache.Tier = (*Store)(nil)
var _ cache.Sizer = (*Store)(nil)

// New creates the persistent tier and purges entries left stale by a
// previous session. Storage failures during the initial scan are logged;
// the tier then starts with an empty index.
func New(ctx context.Context, redisClient redis.UniversalClient, opts Options) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = log.With().Str("component", "persistent-tier").Logger()
	}

	s := &Store{
		redis:  redisClient,
		prefix: prefix,
		budget: opts.BudgetBytes,
		maxAge: opts.MaxAge,
		logger: logger,
		index:  make(map[string]indexEntry),
	}

	if err := s.load(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load persistent tier index, starting empty")
	}

	return s
}

// load rebuilds the index from Redis and deletes expired, over-age and
// corrupt entries.
func (s *Store) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var stale []string

	iter := s.redis.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		key := strings.TrimPrefix(redisKey, s.prefix)

		data, err := s.redis.Get(ctx, redisKey).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}

		entry, err := decode(data)
		if err != nil {
			stale = append(stale, redisKey)
			continue
		}
		if entry.IsExpiredAt(now) || (s.maxAge > 0 && now.Sub(entry.WrittenAt) > s.maxAge) {
			stale = append(stale, redisKey)
			continue
		}

		s.track(key, int64(len(redisKey)+len(data)), entry.WrittenAt, entry.TTL)
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}

	if len(stale) > 0 {
		if err := s.redis.Del(ctx, stale...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		s.logger.Info().Int("purged", len(stale)).Msg("Purged stale entries from previous session")
	}

	s.logger.Debug().
		Int("entries", len(s.index)).
		Int64("bytes", s.usage).
		Msg("Persistent tier index loaded")

	return nil
}

// Get retrieves an entry by key.
// Returns cache.ErrCacheMiss if the key doesn't exist or the entry is expired.
func (s *Store) Get(ctx context.Context, key string) (*cache.Entry, error) {
	data, err := s.redis.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.dropIfUnchanged(ctx, key, nil)
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry, err := decode(data)
	if err != nil {
		s.dropIfUnchanged(ctx, key, data)
		return nil, fmt.Errorf("%w: %v", cache.ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		s.dropIfUnchanged(ctx, key, data)
		return nil, cache.ErrCacheMiss
	}

	return entry, nil
}

// dropIfUnchanged removes key when Redis still holds seen (nil meaning
// absent). A value written since the unlocked read is left alone.
func (s *Store) dropIfUnchanged(ctx context.Context, key string, seen []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.redis.Get(ctx, s.prefix+key).Bytes()
	switch {
	case err == redis.Nil:
		s.forget(key)
	case err != nil:
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to recheck stale entry")
	case seen != nil && bytes.Equal(current, seen):
		if err := s.redis.Del(ctx, s.prefix+key).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete stale entry")
			return
		}
		s.forget(key)
	}
}

// Set stores value under key.
//
// An entry larger than the whole budget is rejected with
// cache.ErrWriteDropped. When the write would exceed the budget, expired
// entries are purged first, then the oldest quarter of entries until it
// fits. If Redis still refuses the write for lack of memory, the oldest
// quarter is purged once more and the write retried a final time before
// it is dropped, again with cache.ErrWriteDropped.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	// the payload has millisecond resolution
	ttl = max(ttl, time.Millisecond)
	now := time.UnixMilli(time.Now().UnixMilli())

	data, err := encode(value, now, ttl)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	size := int64(len(s.prefix) + len(key) + len(data))

	if s.budget > 0 && size > s.budget {
		s.logger.Warn().
			Str("key", key).
			Int64("size", size).
			Int64("budget", s.budget).
			Msg("Entry exceeds persistent budget, write rejected")
		return fmt.Errorf("%w: %s needs %d bytes, budget is %d", cache.ErrWriteDropped, key, size, s.budget)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.makeRoom(ctx, key, size, now)

	err = s.write(ctx, key, data, ttl)
	if err == nil {
		s.track(key, size, now, ttl)
		return nil
	}
	if !isQuotaError(err) {
		return err
	}

	s.logger.Warn().Err(err).Str("key", key).Msg("Storage quota exceeded, purging oldest entries")
	s.purgeOldest(ctx)

	if err := s.write(ctx, key, data, ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Dropping write after quota recovery failed")
		return fmt.Errorf("%w: %v", cache.ErrWriteDropped, err)
	}
	s.track(key, size, now, ttl)
	return nil
}

// Delete removes a cache entry. The lock spans the Redis delete so a
// concurrent Set cannot land between it and the index update.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.redis.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	s.forget(key)
	return nil
}

// Clear removes every key under the prefix and nothing else.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch []string
	iter := s.redis.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := s.redis.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := s.redis.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}

	clear(s.index)
	s.usage = 0
	return nil
}

// Has reports whether a fresh entry exists for key.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, err := s.Get(ctx, key)
	return err == nil
}

// Len returns the number of tracked entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Usage returns the tracked bytes, keys included.
func (s *Store) Usage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Budget returns the configured byte budget.
func (s *Store) Budget() int64 {
	return s.budget
}

// Prefix returns the key namespace.
func (s *Store) Prefix() string {
	return s.prefix
}

// EntrySize estimates the bytes a write of value would occupy.
func (s *Store) EntrySize(key string, value json.RawMessage, ttl time.Duration) (int64, error) {
	data, err := encode(value, time.Now(), ttl)
	if err != nil {
		return 0, err
	}
	return int64(len(s.prefix) + len(key) + len(data)), nil
}

func (s *Store) write(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// makeRoom frees space for an entry of size bytes. Caller holds s.mu.
func (s *Store) makeRoom(ctx context.Context, key string, size int64, now time.Time) {
	if s.budget <= 0 || s.projected(key, size) <= s.budget {
		return
	}

	s.purgeExpired(ctx, now)
	for s.projected(key, size) > s.budget && len(s.index) > 0 {
		if s.purgeOldest(ctx) == 0 {
			return
		}
	}
}

func (s *Store) projected(key string, size int64) int64 {
	return s.usage - s.index[key].size + size
}

// purgeExpired drops every expired entry. Caller holds s.mu.
func (s *Store) purgeExpired(ctx context.Context, now time.Time) int {
	var keys []string
	for key, ie := range s.index {
		if now.Sub(ie.writtenAt) >= ie.ttl {
			keys = append(keys, key)
		}
	}
	return s.purge(ctx, keys)
}

// purgeOldest drops the oldest quarter of entries by write time, at least
// one. Caller holds s.mu.
func (s *Store) purgeOldest(ctx context.Context) int {
	if len(s.index) == 0 {
		return 0
	}

	keys := make([]string, 0, len(s.index))
	for key := range s.index {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.index[keys[i]], s.index[keys[j]]
		if a.writtenAt.Equal(b.writtenAt) {
			return keys[i] < keys[j]
		}
		return a.writtenAt.Before(b.writtenAt)
	})

	n := (len(keys) + purgeFraction - 1) / purgeFraction
	return s.purge(ctx, keys[:n])
}

func (s *Store) purge(ctx context.Context, keys []string) int {
	if len(keys) == 0 {
		return 0
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = s.prefix + key
	}
	if err := s.redis.Del(ctx, redisKeys...).Err(); err != nil {
		s.logger.Warn().Err(err).Int("keys", len(keys)).Msg("Failed to purge entries")
		return 0
	}

	for _, key := range keys {
		s.forget(key)
	}
	cache.CacheEvictions.WithLabelValues(string(cache.TierPersistent)).Add(float64(len(keys)))
	s.logger.Debug().Int("purged", len(keys)).Int64("usage", s.usage).Msg("Purged persistent entries")
	return len(keys)
}

func (s *Store) track(key string, size int64, writtenAt time.Time, ttl time.Duration) {
	s.forget(key)
	s.index[key] = indexEntry{size: size, writtenAt: writtenAt, ttl: ttl}
	s.usage += size
}

func (s *Store) forget(key string) {
	if ie, ok := s.index[key]; ok {
		s.usage -= ie.size
		delete(s.index, key)
	}
}

func encode(value json.RawMessage, writtenAt time.Time, ttl time.Duration) ([]byte, error) {
	return json.Marshal(storedEntry{
		Value:      value,
		WrittenAt:  writtenAt.UnixMilli(),
		TimeToLive: ttl.Milliseconds(),
	})
}

func decode(data []byte) (*cache.Entry, error) {
	var se storedEntry
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, err
	}
	if se.WrittenAt <= 0 || se.TimeToLive <= 0 {
		return nil, fmt.Errorf("missing writtenAt or timeToLive")
	}
	return &cache.Entry{
		Value:     se.Value,
		WrittenAt: time.UnixMilli(se.WrittenAt),
		TTL:       time.Duration(se.TimeToLive) * time.Millisecond,
	}, nil
}

// isQuotaError reports whether Redis refused a write for lack of memory.
func isQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "OOM") || strings.Contains(msg, "maxmemory")
}
