package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		writtenAt time.Time
		ttl       time.Duration
		want      bool
	}{
		{
			name:      "expired entry",
			writtenAt: time.Now().Add(-2 * time.Hour),
			ttl:       time.Hour,
			want:      true,
		},
		{
			name:      "valid entry",
			writtenAt: time.Now(),
			ttl:       time.Hour,
			want:      false,
		},
		{
			name:      "just expired",
			writtenAt: time.Now().Add(-time.Minute - time.Second),
			ttl:       time.Minute,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{
				WrittenAt: tt.writtenAt,
				TTL:       tt.ttl,
			}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_IsExpiredAt_Boundary(t *testing.T) {
	now := time.Now()
	entry := &Entry{WrittenAt: now, TTL: time.Second}

	if entry.IsExpiredAt(now.Add(999 * time.Millisecond)) {
		t.Error("entry should be fresh just before TTL elapses")
	}
	if !entry.IsExpiredAt(now.Add(time.Second)) {
		t.Error("entry should be stale once TTL has fully elapsed")
	}
}

func TestEntry_Remaining(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "one hour remaining",
			entry:   Entry{WrittenAt: time.Now(), TTL: time.Hour},
			wantMin: 59 * time.Minute,
			wantMax: 61 * time.Minute,
		},
		{
			name:    "already expired",
			entry:   Entry{WrittenAt: time.Now().Add(-2 * time.Hour), TTL: time.Hour},
			wantMin: 0,
			wantMax: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.entry.Remaining()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Remaining() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestNewEntry_CopiesValue(t *testing.T) {
	raw := json.RawMessage(`{"value":8}`)
	entry := NewEntry(raw, 0)

	raw[2] = 'X'
	if string(entry.Value) != `{"value":8}` {
		t.Errorf("entry aliases caller slice: %s", entry.Value)
	}
	if entry.TTL != DefaultTTL {
		t.Errorf("TTL = %v, want default %v", entry.TTL, DefaultTTL)
	}

	clone := entry.Clone()
	clone.Value[2] = 'Y'
	if string(entry.Value) != `{"value":8}` {
		t.Errorf("Clone aliases original value: %s", entry.Value)
	}
}
