package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
)

var (
	// ErrCacheMiss indicates no tier holds a value for the key
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrInvalidKey indicates the key is not "category" or "category:field".
	// It matches ErrCacheMiss: a malformed key resolves to nothing.
	ErrInvalidKey = fmt.Errorf("invalid cache key: %w", ErrCacheMiss)

	// ErrWriteDropped is returned by a tier that declined a write on
	// capacity grounds. The Manager logs it but does not count it as a
	// failure.
	ErrWriteDropped = errors.New("write dropped")
)

// Options configures a Manager.
type Options struct {
	// Tiers maps chain positions to their backends. Absent tiers are skipped.
	Tiers map[TierID]Tier

	// Logger defaults to the global zerolog logger tagged with the component.
	Logger *zerolog.Logger

	// EventBufferSize is the number of events kept (default 100).
	EventBufferSize int

	// PolicyFor resolves the policy for a key (default policy.ForKey).
	PolicyFor func(key string) policy.Policy
}

// Manager composes the tiers into a single read-through cache.
type Manager struct {
	tiers     map[TierID]Tier
	policyFor func(string) policy.Policy
	logger    zerolog.Logger
	session   string

	mu           sync.Mutex
	counters     counters
	events       *eventRing
	revalidating map[string]bool

	pending sync.WaitGroup
}

// NewManager creates a cache manager over the given tiers.
func NewManager(opts Options) *Manager {
	if len(opts.Tiers) == 0 {
		panic("cache manager needs at least one tier")
	}

	tiers := make(map[TierID]Tier, len(opts.Tiers))
	for id, t := range opts.Tiers {
		if !id.Valid() {
			panic(fmt.Sprintf("unknown tier %q", id))
		}
		if t != nil {
			tiers[id] = t
		}
	}

	session := uuid.NewString()
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("session", session).Logger()
	} else {
		logger = log.With().Str("component", "config-cache").Str("session", session).Logger()
	}

	policyFor := opts.PolicyFor
	if policyFor == nil {
		policyFor = policy.ForKey
	}

	return &Manager{
		tiers:        tiers,
		policyFor:    policyFor,
		logger:       logger,
		session:      session,
		counters:     newCounters(),
		events:       newEventRing(opts.EventBufferSize),
		revalidating: make(map[string]bool),
	}
}

// Session returns the identifier attached to this manager's log lines.
func (m *Manager) Session() string {
	return m.session
}

// Tier returns the backend registered for id, if any.
func (m *Manager) Tier(id TierID) (Tier, bool) {
	t, ok := m.tiers[id]
	return t, ok
}

// Get resolves key by probing TierChain in order.
// Returns ErrCacheMiss if no tier yields a fresh value; tier failures are
// logged and treated as misses.
func (m *Manager) Get(ctx context.Context, key string, opts ...GetOption) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		GetDuration.Observe(time.Since(start).Seconds())
	}()

	key, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}

	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	pol := m.policyFor(key)

	for i, id := range TierChain {
		if o.skipped(id) {
			continue
		}
		tier, ok := m.tiers[id]
		if !ok {
			continue
		}
		if id.Remote() && !pol.RemoteFallbackEligible {
			continue
		}

		entry, err := tier.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrCacheMiss) {
				m.recordError(id, "get", key, err)
			}
			continue
		}

		m.recordHit(id, key, time.Since(start))
		refresh := pol.StaleWhileRevalidate && pol.RemoteFallbackEligible &&
			(id == TierSnapshot || id == TierHardcoded) && !o.skipped(TierRemoteDirect)
		m.afterHit(ctx, key, entry.Value, TierChain[:i], pol, &o, refresh)

		return CloneValue(entry.Value), nil
	}

	m.recordMiss(key, time.Since(start))
	return nil, ErrCacheMiss
}

// GetAs resolves key and decodes the JSON value into T.
func GetAs[T any](ctx context.Context, m *Manager, key string, opts ...GetOption) (T, error) {
	var out T
	raw, err := m.Get(ctx, key, opts...)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: decode %s: %v", ErrInvalidEntry, key, err)
	}
	return out, nil
}

// afterHit schedules the background work that follows a hit: promotion
// into the writable tiers in faster and, when refresh is set, a
// revalidation against the remote store. Promotion always lands before
// the revalidated value.
func (m *Manager) afterHit(ctx context.Context, key string, value json.RawMessage, faster []TierID, pol policy.Policy, o *getOptions, refresh bool) {
	var targets []TierID
	for _, id := range faster {
		if !id.Writable() || o.skipped(id) {
			continue
		}
		if _, ok := m.tiers[id]; ok {
			targets = append(targets, id)
		}
	}

	var direct Tier
	var refreshTargets []TierID
	if refresh {
		direct = m.claimRevalidation(key)
		for _, id := range DefaultWriteTiers {
			if _, ok := m.tiers[id]; ok && !o.skipped(id) {
				refreshTargets = append(refreshTargets, id)
			}
		}
	}
	if len(targets) == 0 && direct == nil {
		return
	}

	value = CloneValue(value)
	bg := context.WithoutCancel(ctx)

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.promote(bg, key, value, targets, pol)
		if direct != nil {
			m.revalidate(bg, direct, key, refreshTargets, pol)
		}
	}()
}

// promote copies value into targets with the policy TTL.
func (m *Manager) promote(ctx context.Context, key string, value json.RawMessage, targets []TierID, pol policy.Policy) {
	for _, id := range targets {
		if m.writeFailed(id, "promote", key, m.tiers[id].Set(ctx, key, value, pol.TTL)) {
			continue
		}
		CachePromotions.WithLabelValues(string(id)).Inc()
	}
}

// claimRevalidation returns the remote-direct tier if no refresh of key is
// already running, marking one as started. It returns nil otherwise.
func (m *Manager) claimRevalidation(key string) Tier {
	direct, ok := m.tiers[TierRemoteDirect]
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revalidating[key] {
		return nil
	}
	m.revalidating[key] = true
	return direct
}

// revalidate refreshes a value served from a fallback tier by asking the
// authoritative store and writing the answer into targets.
func (m *Manager) revalidate(ctx context.Context, direct Tier, key string, targets []TierID, pol policy.Policy) {
	defer func() {
		m.mu.Lock()
		delete(m.revalidating, key)
		m.mu.Unlock()
	}()

	entry, err := direct.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			m.recordError(TierRemoteDirect, "revalidate", key, err)
		}
		return
	}

	for _, id := range targets {
		m.writeFailed(id, "revalidate", key, m.tiers[id].Set(ctx, key, entry.Value, pol.TTL))
	}
	m.record(Event{Kind: EventSet, Key: key, Tier: TierRemoteDirect})

	m.logger.Debug().
		Str("key", key).
		Dur("ttl", pol.TTL).
		Msg("Revalidated fallback value from remote store")
}

// Set writes value to the requested tiers (default volatile + persistent).
// Per-tier failures are logged and do not stop the remaining writes.
func (m *Manager) Set(ctx context.Context, key string, value json.RawMessage, opts ...SetOption) error {
	key, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: value for %s is not valid JSON", ErrInvalidEntry, key)
	}

	o := setOptions{tiers: DefaultWriteTiers}
	for _, opt := range opts {
		opt(&o)
	}
	ttl := o.ttl
	if ttl <= 0 {
		ttl = m.policyFor(key).TTL
	}

	for _, id := range o.tiers {
		if !id.Writable() {
			m.logger.Warn().Str("key", key).Str("tier", string(id)).Msg("Ignoring write to read-only tier")
			continue
		}
		tier, ok := m.tiers[id]
		if !ok {
			continue
		}
		if m.writeFailed(id, "set", key, tier.Set(ctx, key, value, ttl)) {
			continue
		}
		m.record(Event{Kind: EventSet, Key: key, Tier: id})
	}

	return nil
}

// SetValue encodes v as JSON and stores it with Set.
func SetValue[T any](ctx context.Context, m *Manager, key string, v T, opts ...SetOption) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return m.Set(ctx, key, raw, opts...)
}

// Delete removes key from every tier. Per-tier failures are independent.
func (m *Manager) Delete(ctx context.Context, key string) error {
	key, err := NormalizeKey(key)
	if err != nil {
		return err
	}

	for _, id := range TierChain {
		tier, ok := m.tiers[id]
		if !ok {
			continue
		}
		if err := tier.Delete(ctx, key); err != nil {
			m.recordError(id, "delete", key, err)
		}
	}
	m.record(Event{Kind: EventDelete, Key: key})

	return nil
}

// Clear empties the requested tiers (default all). The hardcoded tier is
// never cleared, even when named, and gets no clear event. Per-tier
// failures are independent.
func (m *Manager) Clear(ctx context.Context, opts ...ClearOption) {
	o := clearOptions{tiers: TierChain}
	for _, opt := range opts {
		opt(&o)
	}

	for _, id := range o.tiers {
		if !id.Clearable() {
			continue
		}
		tier, ok := m.tiers[id]
		if !ok {
			continue
		}
		if err := tier.Clear(ctx); err != nil {
			m.recordError(id, "clear", "", err)
			continue
		}
		m.record(Event{Kind: EventClear, Tier: id})
	}
}

// Wait blocks until background promotions and revalidations finish.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// Statistics returns the running counters and the current usage of every
// tier that reports it.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	stats := m.counters.snapshot()
	m.mu.Unlock()

	stats.Tiers = make(map[TierID]TierUsage)
	for id, tier := range m.tiers {
		sizer, ok := tier.(Sizer)
		if !ok {
			continue
		}
		usage := TierUsage{Entries: sizer.Len(), Bytes: sizer.Usage()}
		stats.Tiers[id] = usage
		CacheSize.WithLabelValues(string(id)).Set(float64(usage.Bytes))
	}

	return stats
}

// Events returns up to limit of the most recent events, oldest first.
// A non-positive limit returns every buffered event.
func (m *Manager) Events(limit int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.last(limit)
}

// ResetStatistics zeroes the counters and drops buffered events.
func (m *Manager) ResetStatistics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = newCounters()
	m.events.reset()
}

func (m *Manager) record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.events.add(e)
	m.mu.Unlock()
}

func (m *Manager) recordHit(id TierID, key string, latency time.Duration) {
	m.mu.Lock()
	m.counters.hits++
	m.counters.hitsByTier[id]++
	m.counters.observeLatency(latency)
	m.events.add(Event{Kind: EventHit, Key: key, Tier: id, Timestamp: time.Now()})
	m.mu.Unlock()

	CacheHits.WithLabelValues(string(id)).Inc()
	m.logger.Debug().Str("key", key).Str("tier", string(id)).Dur("duration", latency).Msg("Cache hit")
}

func (m *Manager) recordMiss(key string, latency time.Duration) {
	m.mu.Lock()
	m.counters.misses++
	m.counters.observeLatency(latency)
	m.events.add(Event{Kind: EventMiss, Key: key, Timestamp: time.Now()})
	m.mu.Unlock()

	CacheMisses.Inc()
	m.logger.Debug().Str("key", key).Dur("duration", latency).Msg("Cache miss")
}

// writeFailed reports whether a tier write did not land. Dropped writes
// are logged at Debug; other failures are recorded as tier errors.
func (m *Manager) writeFailed(id TierID, op, key string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrWriteDropped):
		m.logger.Debug().
			Err(err).
			Str("tier", string(id)).
			Str("operation", op).
			Str("key", key).
			Msg("Tier dropped write")
	default:
		m.recordError(id, op, key, err)
	}
	return true
}

func (m *Manager) recordError(id TierID, op, key string, err error) {
	m.mu.Lock()
	m.counters.errors++
	m.mu.Unlock()

	CacheErrors.WithLabelValues(string(id), op).Inc()
	m.logger.Warn().
		Err(err).
		Str("tier", string(id)).
		Str("operation", op).
		Str("key", key).
		Msg("Cache tier error")
}
