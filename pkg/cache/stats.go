package cache

import "time"

// TierUsage is the size of one tier at the time Statistics was called.
type TierUsage struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Statistics is a point-in-time copy of the Manager's counters.
type Statistics struct {
	Hits           uint64               `json:"hits"`
	Misses         uint64               `json:"misses"`
	Errors         uint64               `json:"errors"`
	HitsByTier     map[TierID]uint64    `json:"hitsByTier"`
	HitRate        float64              `json:"hitRate"`
	AverageLatency time.Duration        `json:"averageLatency"`
	Tiers          map[TierID]TierUsage `json:"tiers"`
}

// counters is updated incrementally on every lookup. Guarded by Manager.mu.
type counters struct {
	hits       uint64
	misses     uint64
	errors     uint64
	hitsByTier map[TierID]uint64

	// running mean of lookup latency over hits and misses
	lookups    uint64
	avgLatency float64
}

func newCounters() counters {
	return counters{hitsByTier: make(map[TierID]uint64)}
}

func (c *counters) observeLatency(d time.Duration) {
	c.lookups++
	c.avgLatency += (float64(d) - c.avgLatency) / float64(c.lookups)
}

func (c *counters) hitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *counters) snapshot() Statistics {
	byTier := make(map[TierID]uint64, len(c.hitsByTier))
	for id, n := range c.hitsByTier {
		byTier[id] = n
	}
	return Statistics{
		Hits:           c.hits,
		Misses:         c.misses,
		Errors:         c.errors,
		HitsByTier:     byTier,
		HitRate:        c.hitRate(),
		AverageLatency: time.Duration(c.avgLatency),
	}
}
