// Package cache provides the tiered read-through configuration cache.
//
// The Manager composes independent storage tiers behind the Tier interface
// and resolves every key by probing them in a fixed order:
//
//   - volatile: in-process LRU with a byte budget
//   - persistent: Redis-backed store surviving restarts
//   - snapshot: read-only configuration bundled at build time
//   - remote-cache: extension point for a server-side cache (empty by default)
//   - remote-direct: the authoritative store
//   - hardcoded: fixed critical defaults
//
// The first fresh hit wins. The value is returned immediately and copied
// into the faster writable tiers in the background (promotion). Failing
// tiers are logged and skipped, so only genuine exhaustion reaches the
// caller, as ErrCacheMiss.
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.Options{
//		Tiers: map[cache.TierID]cache.Tier{
//			cache.TierVolatile:     volatile.New(capacity.VolatileBudgetBytes),
//			cache.TierPersistent:   store,
//			cache.TierSnapshot:     snapshot.New(snapshot.Options{}),
//			cache.TierRemoteDirect: remote.NewDirectTier(pgStore, remote.DirectOptions{}),
//			cache.TierHardcoded:    defaults.NewTier(),
//		},
//	})
//
//	raw, err := manager.Get(ctx, "calculations:bra_adjustment")
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// unknown key, use a placeholder
//	}
//
//	// Typed lookups
//	adj, err := cache.GetAs[Adjustment](ctx, manager, "calculations:bra_adjustment")
//
// # Policy
//
// TTL, stale serving and remote eligibility come from package policy, keyed
// by the category prefix of the key ("calculations" in the example above).
// Categories that are not remote-eligible never reach the remote tiers.
//
// # Metrics
//
// The manager exports Prometheus metrics:
//
//   - config_cache_hits_total{tier} - Hits by serving tier
//   - config_cache_misses_total - Lookups that exhausted every tier
//   - config_cache_size_bytes{tier} - Tier usage, refreshed by Statistics
//   - config_cache_errors_total{tier,operation} - Tier-local failures
//   - config_cache_evictions_total{tier} - Capacity-triggered removals
//   - config_cache_promotions_total{tier} - Promotion writes
//   - config_cache_get_duration_seconds - Lookup latency
package cache
