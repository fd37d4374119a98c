package policy

import "time"

// Capacity bounds the storage tiers.
type Capacity struct {
	// VolatileBudgetBytes is the soft byte budget of the in-process tier.
	VolatileBudgetBytes int64 `mapstructure:"volatile_budget_bytes"`

	// PersistentBudgetBytes is the byte budget of the durable tier.
	PersistentBudgetBytes int64 `mapstructure:"persistent_budget_bytes"`

	// MaxAgeDays drops durable entries older than this on startup,
	// whatever their TTL.
	MaxAgeDays int `mapstructure:"max_age_days"`

	// MaxEntriesPerCategory caps the fields flattened per snapshot document.
	MaxEntriesPerCategory int `mapstructure:"max_entries_per_category"`
}

// DefaultCapacity returns the capacity table used when nothing overrides it.
func DefaultCapacity() Capacity {
	return Capacity{
		VolatileBudgetBytes:   10 << 20,
		PersistentBudgetBytes: 5 << 20,
		MaxAgeDays:            7,
		MaxEntriesPerCategory: 1000,
	}
}

// MaxAge returns MaxAgeDays as a duration. Zero means no age limit.
func (c Capacity) MaxAge() time.Duration {
	if c.MaxAgeDays <= 0 {
		return 0
	}
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}
