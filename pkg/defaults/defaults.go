// Package defaults holds the last-resort configuration values compiled into
// the binary. Every key in the table resolves even when every other tier
// is unavailable.
package defaults

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
)

var table = map[string]string{
	"calculations:bra_adjustment":     `{"value":8,"unit":"%"}`,
	"calculations:default_efficiency": `{"value":0.82,"unit":""}`,
	"calculations:grid_rent":          `{"value":0.5,"unit":"kr/kWh"}`,
	"calculations:energy_price_floor": `{"value":1.0,"unit":"kr/kWh"}`,
	"calculations:heating_share":      `{"value":70,"unit":"%"}`,
	"calculations:lighting_share":     `{"value":15,"unit":"%"}`,

	"tek17_requirements:small_house":     `{"value":100,"unit":"kWh/m²"}`,
	"tek17_requirements:apartment_block": `{"value":95,"unit":"kWh/m²"}`,
	"tek17_requirements:office":          `{"value":115,"unit":"kWh/m²"}`,
	"tek17_requirements:school":          `{"value":110,"unit":"kWh/m²"}`,

	"enova_criteria:min_savings_percent": `{"value":20,"unit":"%"}`,

	"energy_prices:NO1": `{"value":1.2,"unit":"kr/kWh"}`,
	"energy_prices:NO2": `{"value":1.1,"unit":"kr/kWh"}`,
	"energy_prices:NO3": `{"value":0.6,"unit":"kr/kWh"}`,
	"energy_prices:NO4": `{"value":0.4,"unit":"kr/kWh"}`,
	"energy_prices:NO5": `{"value":1.0,"unit":"kr/kWh"}`,

	"energy_zones:default": `{"value":"NO1"}`,

	"investment_guidance:payback_years": `{"value":7,"unit":"years"}`,

	"translations:app_title": `{"no":"Energianalyse","en":"Energy analysis"}`,

	"feature_flags:show_3d_model": `{"value":true}`,
	"feature_flags:pdf_export":    `{"value":true}`,
	"feature_flags:enova_wizard":  `{"value":false}`,
}

// Tier serves the hardcoded table. It never fails and ignores writes.
type Tier struct {
	values     map[string]json.RawMessage
	categories map[string]json.RawMessage
	policyFor  func(string) policy.Policy
}

var _ cache.Tier = (*Tier)(nil)

// NewTier builds the hardcoded tier. Whole-category keys resolve to an
// object of every field the table holds for that category.
func NewTier() *Tier {
	t := &Tier{
		values:     make(map[string]json.RawMessage, len(table)),
		categories: make(map[string]json.RawMessage),
		policyFor:  policy.ForKey,
	}

	grouped := make(map[string]map[string]json.RawMessage)
	for key, raw := range table {
		t.values[key] = json.RawMessage(raw)
		category, field := policy.SplitKey(key)
		if grouped[category] == nil {
			grouped[category] = make(map[string]json.RawMessage)
		}
		grouped[category][field] = json.RawMessage(raw)
	}
	for category, fields := range grouped {
		// Marshalling a map of valid raw JSON cannot fail.
		whole, _ := json.Marshal(fields)
		t.categories[category] = whole
	}
	return t
}

// Keys returns every field key in the table, sorted.
func Keys() []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get implements cache.Tier.
func (t *Tier) Get(_ context.Context, key string) (*cache.Entry, error) {
	value, ok := t.lookup(key)
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &cache.Entry{
		Value:     cache.CloneValue(value),
		WrittenAt: time.Now(),
		TTL:       t.policyFor(key).TTL,
	}, nil
}

func (t *Tier) lookup(key string) (json.RawMessage, bool) {
	if !strings.Contains(key, policy.KeyDelimiter) {
		v, ok := t.categories[key]
		return v, ok
	}
	v, ok := t.values[key]
	return v, ok
}

// Set is a no-op.
func (t *Tier) Set(context.Context, string, json.RawMessage, time.Duration) error { return nil }

// Delete is a no-op.
func (t *Tier) Delete(context.Context, string) error { return nil }

// Clear is a no-op.
func (t *Tier) Clear(context.Context) error { return nil }

// Has implements cache.Tier.
func (t *Tier) Has(_ context.Context, key string) bool {
	_, ok := t.lookup(key)
	return ok
}

// Len implements cache.Sizer.
func (t *Tier) Len() int { return len(t.values) }

// Usage implements cache.Sizer.
func (t *Tier) Usage() int64 {
	var n int64
	for k, v := range t.values {
		n += int64(len(k) + len(v))
	}
	return n
}
