package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks hits by the tier that served them
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_cache_hits_total",
			Help: "Total number of configuration cache hits",
		},
		[]string{"tier"},
	)

	// CacheMisses tracks lookups that exhausted every tier
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "config_cache_misses_total",
			Help: "Total number of configuration cache misses",
		},
	)

	// CacheSize tracks tier usage in bytes
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "config_cache_size_bytes",
			Help: "Current size of a configuration cache tier in bytes",
		},
		[]string{"tier"},
	)

	// CacheErrors tracks tier-local failures
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_cache_errors_total",
			Help: "Total number of configuration cache tier errors",
		},
		[]string{"tier", "operation"}, // "get", "set", "delete", "clear", "promote"
	)

	// CacheEvictions tracks capacity-triggered removals
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_cache_evictions_total",
			Help: "Total number of entries evicted to stay within a tier budget",
		},
		[]string{"tier"},
	)

	// CachePromotions tracks values copied into faster tiers after a hit
	CachePromotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_cache_promotions_total",
			Help: "Total number of promotion writes into faster tiers",
		},
		[]string{"tier"},
	)

	// GetDuration tracks the latency of Manager.Get
	GetDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "config_cache_get_duration_seconds",
			Help:    "Configuration cache lookup duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)
