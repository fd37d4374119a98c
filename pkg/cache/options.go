package cache

import "time"

// GetOption configures a single Get.
type GetOption func(*getOptions)

type getOptions struct {
	skip map[TierID]bool
}

// WithSkipTiers bypasses the given tiers for this lookup. Skipped tiers are
// neither probed nor promoted into.
func WithSkipTiers(tiers ...TierID) GetOption {
	return func(o *getOptions) {
		if o.skip == nil {
			o.skip = make(map[TierID]bool, len(tiers))
		}
		for _, id := range tiers {
			o.skip[id] = true
		}
	}
}

// SkipThrough bypasses every tier up to and including id, so the lookup
// starts at the next tier in TierChain.
func SkipThrough(id TierID) GetOption {
	var prefix []TierID
	for _, t := range TierChain {
		prefix = append(prefix, t)
		if t == id {
			return WithSkipTiers(prefix...)
		}
	}
	return func(*getOptions) {}
}

func (o *getOptions) skipped(id TierID) bool {
	return o.skip[id]
}

// SetOption configures a single Set.
type SetOption func(*setOptions)

type setOptions struct {
	tiers []TierID
	ttl   time.Duration
}

// WithTiers selects the tiers written by Set. Non-writable tiers are ignored.
func WithTiers(tiers ...TierID) SetOption {
	return func(o *setOptions) {
		o.tiers = append([]TierID(nil), tiers...)
	}
}

// WithTTL overrides the category policy TTL for this write.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

// ClearOption configures Clear.
type ClearOption func(*clearOptions)

type clearOptions struct {
	tiers []TierID
}

// ClearTiers limits Clear to the given tiers. The default is every tier.
func ClearTiers(tiers ...TierID) ClearOption {
	return func(o *clearOptions) {
		o.tiers = append([]TierID(nil), tiers...)
	}
}
