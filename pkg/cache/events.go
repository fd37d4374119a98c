package cache

import "time"

// EventKind classifies a cache event.
type EventKind string

const (
	EventHit    EventKind = "hit"
	EventMiss   EventKind = "miss"
	EventSet    EventKind = "set"
	EventDelete EventKind = "delete"
	EventClear  EventKind = "clear"
)

// DefaultEventBufferSize is the number of events kept when Options does not
// say otherwise.
const DefaultEventBufferSize = 100

// Event records one cache operation for observability. Events are never
// persisted and never influence lookups.
type Event struct {
	Kind      EventKind `json:"kind"`
	Key       string    `json:"key,omitempty"`
	Tier      TierID    `json:"tier,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// eventRing keeps the last len(buf) events. Not safe for concurrent use;
// the Manager guards it.
type eventRing struct {
	buf  []Event
	next int
	full bool
}

func newEventRing(size int) *eventRing {
	if size <= 0 {
		size = DefaultEventBufferSize
	}
	return &eventRing{buf: make([]Event, size)}
}

func (r *eventRing) add(e Event) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *eventRing) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// last returns up to limit of the most recent events, oldest first.
// A non-positive limit returns everything buffered.
func (r *eventRing) last(limit int) []Event {
	n := r.len()
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Event, 0, limit)
	start := r.next - limit
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *eventRing) reset() {
	clear(r.buf)
	r.next = 0
	r.full = false
}
