package volatile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
)

func TestStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	require.NoError(t, s.Set(ctx, "calculations:bra_adjustment", json.RawMessage(`{"value":8,"unit":"%"}`), time.Minute))

	entry, err := s.Get(ctx, "calculations:bra_adjustment")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":8,"unit":"%"}`, string(entry.Value))
	assert.Equal(t, time.Minute, entry.TTL)
	assert.True(t, s.Has(ctx, "calculations:bra_adjustment"))
}

func TestStore_GetMiss(t *testing.T) {
	s := New(0)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	assert.False(t, s.Has(context.Background(), "missing"))
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	require.NoError(t, s.Set(ctx, "feature_flags:beta", json.RawMessage(`true`), 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	_, err := s.Get(ctx, "feature_flags:beta")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	assert.False(t, s.Has(ctx, "feature_flags:beta"))
	assert.Equal(t, 0, s.Len(), "expired entry should be deleted lazily")
	assert.Equal(t, int64(0), s.Usage())
}

func TestStore_ReturnedEntryIsCopy(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	require.NoError(t, s.Set(ctx, "k", json.RawMessage(`"abc"`), time.Minute))

	entry, err := s.Get(ctx, "k")
	require.NoError(t, err)
	entry.Value[1] = 'X'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(again.Value))
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	value := json.RawMessage(`"0123456789"`)
	size, err := EntrySize("key-0", cache.NewEntry(value, time.Minute))
	require.NoError(t, err)

	// Room for three entries but not four; timestamps vary the size slightly.
	s := New(3*size + size/2)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("key-%d", i), value, time.Minute))
	}

	// Touch key-0 so key-1 becomes least recently used.
	_, err = s.Get(ctx, "key-0")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "key-3", value, time.Minute))

	assert.False(t, s.Has(ctx, "key-1"), "LRU key should be evicted")
	assert.True(t, s.Has(ctx, "key-0"))
	assert.True(t, s.Has(ctx, "key-2"))
	assert.True(t, s.Has(ctx, "key-3"))
	assert.LessOrEqual(t, s.Usage(), s.Budget())
}

func TestStore_EvictionBound(t *testing.T) {
	ctx := context.Background()
	const budget = 2048
	s := New(budget)

	var largest int64
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("calculations:field_%d", i)
		value := json.RawMessage(fmt.Sprintf(`{"value":%d,"note":"%0*d"}`, i, i%40, 0))
		size, err := EntrySize(key, cache.NewEntry(value, time.Minute))
		require.NoError(t, err)
		if size > largest {
			largest = size
		}

		require.NoError(t, s.Set(ctx, key, value, time.Minute))
		assert.LessOrEqual(t, s.Usage(), int64(budget)+largest)
	}
	assert.LessOrEqual(t, s.Usage(), int64(budget))
}

func TestStore_OversizedEntryStillInserted(t *testing.T) {
	ctx := context.Background()
	s := New(64)

	require.NoError(t, s.Set(ctx, "a", json.RawMessage(`1`), time.Minute))
	big := json.RawMessage(`"` + strings.Repeat("x", 256) + `"`)
	require.NoError(t, s.Set(ctx, "big", big, time.Minute))

	assert.True(t, s.Has(ctx, "big"), "budget is a soft target")
	assert.True(t, s.Has(ctx, "a"), "the single remaining entry is not evicted for an oversized insert")
	assert.Equal(t, 2, s.Len())
}

func TestStore_OverwriteReplacesSize(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	require.NoError(t, s.Set(ctx, "k", json.RawMessage(`"a long value here"`), time.Minute))
	require.NoError(t, s.Set(ctx, "k", json.RawMessage(`1`), time.Minute))

	entry, err := s.Get(ctx, "k")
	require.NoError(t, err)
	size, err := EntrySize("k", entry)
	require.NoError(t, err)
	assert.Equal(t, size, s.Usage())
	assert.Equal(t, 1, s.Len())
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	require.NoError(t, s.Set(ctx, "a", json.RawMessage(`1`), time.Minute))
	require.NoError(t, s.Set(ctx, "b", json.RawMessage(`2`), time.Minute))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))
	assert.False(t, s.Has(ctx, "a"))
	assert.Equal(t, []string{"b"}, s.Keys())

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, int64(0), s.Usage())
}

func TestStore_RejectsInvalidJSON(t *testing.T) {
	s := New(0)
	err := s.Set(context.Background(), "k", json.RawMessage(`{not json`), time.Minute)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}
