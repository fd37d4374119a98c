package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Tier is the capability every storage backend in the chain implements.
// Get returns ErrCacheMiss when the key is absent or stale; any other error
// is a tier-local failure that the Manager treats as a miss.
type Tier interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// Sizer is implemented by tiers that can report their usage.
type Sizer interface {
	Len() int
	Usage() int64
}

// TierID names a tier in the chain.
type TierID string

const (
	TierVolatile     TierID = "volatile"
	TierPersistent   TierID = "persistent"
	TierSnapshot     TierID = "snapshot"
	TierRemoteCache  TierID = "remote-cache"
	TierRemoteDirect TierID = "remote-direct"
	TierHardcoded    TierID = "hardcoded"
)

// TierChain is the fixed probe order for every read.
var TierChain = []TierID{
	TierVolatile,
	TierPersistent,
	TierSnapshot,
	TierRemoteCache,
	TierRemoteDirect,
	TierHardcoded,
}

// Writable reports whether application writes and promotions may target
// the tier. Only tiers faster than the snapshot are writable.
func (id TierID) Writable() bool {
	return id == TierVolatile || id == TierPersistent
}

// Remote reports whether the tier talks to the authoritative store.
func (id TierID) Remote() bool {
	return id == TierRemoteCache || id == TierRemoteDirect
}

// Clearable reports whether Clear applies to the tier. The hardcoded
// table is compiled in and cannot be emptied.
func (id TierID) Clearable() bool {
	return id != TierHardcoded
}

// Valid reports whether id is part of TierChain.
func (id TierID) Valid() bool {
	for _, t := range TierChain {
		if t == id {
			return true
		}
	}
	return false
}

// DefaultWriteTiers are the targets of Set when no tiers are given.
var DefaultWriteTiers = []TierID{TierVolatile, TierPersistent}
