// Package policy holds the static per-category cache policy, the capacity
// table and the key helpers that recover a category from a cache key.
package policy

import (
	"strings"
	"time"
)

// Policy controls how long a category's entries live and whether the
// remote store may be consulted for it.
type Policy struct {
	// TTL is the time-to-live applied to entries written for the category.
	TTL time.Duration

	// StaleWhileRevalidate permits serving a non-authoritative value while a
	// refresh from the remote store runs in the background.
	StaleWhileRevalidate bool

	// RemoteFallbackEligible allows the remote tiers to be probed.
	RemoteFallbackEligible bool
}

// Known configuration categories.
const (
	CategoryCalculations       = "calculations"
	CategoryTEK17Requirements  = "tek17_requirements"
	CategoryEnovaCriteria      = "enova_criteria"
	CategoryEnergyPrices       = "energy_prices"
	CategoryEnergyZones        = "energy_zones"
	CategoryMunicipalities     = "municipalities"
	CategoryBuildingTypes      = "building_types"
	CategoryInvestmentGuidance = "investment_guidance"
	CategoryContent            = "content"
	CategoryTranslations       = "translations"
	CategoryFeatureFlags       = "feature_flags"
)

// DefaultPolicy is returned for any category missing from the table.
var DefaultPolicy = Policy{
	TTL:                    time.Hour,
	StaleWhileRevalidate:   true,
	RemoteFallbackEligible: false,
}

var table = map[string]Policy{
	CategoryCalculations:       {TTL: 24 * time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryTEK17Requirements:  {TTL: 7 * 24 * time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryEnovaCriteria:      {TTL: 24 * time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryEnergyPrices:       {TTL: 15 * time.Minute, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryEnergyZones:        {TTL: 7 * 24 * time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryMunicipalities:     {TTL: 7 * 24 * time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryBuildingTypes:      {TTL: 7 * 24 * time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryInvestmentGuidance: {TTL: 24 * time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryContent:            {TTL: time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: true},
	CategoryTranslations:       {TTL: 24 * time.Hour, StaleWhileRevalidate: true, RemoteFallbackEligible: false},
	CategoryFeatureFlags:       {TTL: 5 * time.Minute, StaleWhileRevalidate: false, RemoteFallbackEligible: true},
}

// categoryOrder is the stable listing order used by Categories.
var categoryOrder = []string{
	CategoryCalculations,
	CategoryTEK17Requirements,
	CategoryEnovaCriteria,
	CategoryEnergyPrices,
	CategoryEnergyZones,
	CategoryMunicipalities,
	CategoryBuildingTypes,
	CategoryInvestmentGuidance,
	CategoryContent,
	CategoryTranslations,
	CategoryFeatureFlags,
}

// For returns the policy for a category. It never fails: unknown
// categories get DefaultPolicy.
func For(category string) Policy {
	if p, ok := table[category]; ok {
		return p
	}
	return DefaultPolicy
}

// ForKey returns the policy for the category a cache key belongs to.
func ForKey(key string) Policy {
	return For(CategoryOf(key))
}

// Known reports whether the category has an explicit policy.
func Known(category string) bool {
	_, ok := table[category]
	return ok
}

// Categories returns the known categories in a stable order.
func Categories() []string {
	out := make([]string, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// KeyDelimiter separates a category from a field in a cache key.
const KeyDelimiter = ":"

// CategoryOf returns the text before the first delimiter, or the whole key
// when the key names a whole category.
func CategoryOf(key string) string {
	category, _ := SplitKey(key)
	return category
}

// SplitKey splits "category:field" into its parts. Whole-category keys
// return an empty field.
func SplitKey(key string) (category, field string) {
	category, field, found := strings.Cut(key, KeyDelimiter)
	if !found {
		return key, ""
	}
	return category, field
}

// JoinKey builds a cache key from a category and an optional field.
func JoinKey(category, field string) string {
	if field == "" {
		return category
	}
	return category + KeyDelimiter + field
}
