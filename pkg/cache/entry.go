package cache

import (
	"encoding/json"
	"time"
)

// DefaultTTL is applied when a tier is asked to store an entry without a
// positive TTL.
const DefaultTTL = time.Hour

// Entry is a cached configuration value as held by one tier.
type Entry struct {
	// Value is the JSON-encoded configuration value
	Value json.RawMessage `json:"value"`

	// WrittenAt is when the tier stored the value
	WrittenAt time.Time `json:"writtenAt"`

	// TTL is how long the value stays fresh after WrittenAt
	TTL time.Duration `json:"timeToLive"`
}

// NewEntry creates an entry written now. The value is copied so the entry
// never aliases the caller's slice.
func NewEntry(value json.RawMessage, ttl time.Duration) *Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Entry{
		Value:     CloneValue(value),
		WrittenAt: time.Now(),
		TTL:       ttl,
	}
}

// IsExpired returns true if the entry is no longer fresh.
func (e *Entry) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the entry is stale at the given instant.
// An entry is fresh iff now - WrittenAt < TTL.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return now.Sub(e.WrittenAt) >= e.TTL
}

// Remaining returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) Remaining() time.Duration {
	left := e.TTL - time.Since(e.WrittenAt)
	if left < 0 {
		return 0
	}
	return left
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Value = CloneValue(e.Value)
	return &c
}

// CloneValue copies a raw JSON value.
func CloneValue(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
