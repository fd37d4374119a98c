// Package metrics exposes the Prometheus registry used by the configuration
// cache. Metrics are defined in their respective packages (cache, client,
// warmup) and registered via promauto on the default registerer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - config_cache_hits_total{tier} (Counter): Hits by serving tier
//   - config_cache_misses_total (Counter): Lookups that exhausted every tier
//   - config_cache_size_bytes{tier} (Gauge): Tier usage, refreshed by Statistics
//   - config_cache_errors_total{tier, operation} (Counter): Tier-local failures
//   - config_cache_evictions_total{tier} (Counter): Capacity-triggered removals
//   - config_cache_promotions_total{tier} (Counter): Promotion writes
//   - config_cache_get_duration_seconds (Histogram): Lookup latency
//
// Client Metrics (pkg/client):
//   - config_client_lookups_total{outcome} (Counter): hit, miss, timeout, fallback
//   - config_client_lookup_duration_seconds (Histogram): Latency seen by callers
//
// Warmup Metrics (pkg/warmup):
//   - config_cache_warmup_retries_total (Counter): Retry attempts
//   - config_cache_warmup_retry_exhausted_total (Counter): Keys that failed every attempt
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(config_cache_hits_total[5m])) /
//   (sum(rate(config_cache_hits_total[5m])) + sum(rate(config_cache_misses_total[5m])))
//
//   # Share of lookups served by the hardcoded safety net
//   rate(config_cache_hits_total{tier="hardcoded"}[5m]) / sum(rate(config_cache_hits_total[5m]))
//
//   # Failing tiers
//   sum by (tier) (rate(config_cache_errors_total[5m]))
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(config_cache_get_duration_seconds_bucket[5m]))
