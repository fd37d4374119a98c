package defaults

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
)

func TestTable_KeysAreWellFormed(t *testing.T) {
	for _, key := range Keys() {
		category, field := policy.SplitKey(key)
		assert.True(t, policy.Known(category), "unknown category in %s", key)
		assert.NotEmpty(t, field, key)

		normalized, err := cache.NormalizeKey(key)
		require.NoError(t, err)
		assert.Equal(t, key, normalized)
		assert.True(t, json.Valid([]byte(table[key])), key)
	}
}

func TestTier_EveryKeyResolves(t *testing.T) {
	ctx := context.Background()
	tier := NewTier()

	for _, key := range Keys() {
		entry, err := tier.Get(ctx, key)
		require.NoError(t, err, key)
		assert.JSONEq(t, table[key], string(entry.Value))
		assert.Equal(t, policy.ForKey(key).TTL, entry.TTL)
	}
}

func TestTier_WholeCategory(t *testing.T) {
	entry, err := NewTier().Get(context.Background(), "feature_flags")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"show_3d_model": {"value":true},
		"pdf_export": {"value":true},
		"enova_wizard": {"value":false}
	}`, string(entry.Value))
}

func TestTier_Miss(t *testing.T) {
	ctx := context.Background()
	tier := NewTier()

	for _, key := range []string{"nonexistent:field", "nonexistent", "calculations:unknown", "content"} {
		_, err := tier.Get(ctx, key)
		assert.ErrorIs(t, err, cache.ErrCacheMiss, key)
		assert.False(t, tier.Has(ctx, key), key)
	}
}

func TestTier_WritesIgnored(t *testing.T) {
	ctx := context.Background()
	tier := NewTier()

	require.NoError(t, tier.Set(ctx, "calculations:bra_adjustment", json.RawMessage(`{"value":1}`), time.Minute))
	require.NoError(t, tier.Delete(ctx, "calculations:bra_adjustment"))
	require.NoError(t, tier.Clear(ctx))

	entry, err := tier.Get(ctx, "calculations:bra_adjustment")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":8,"unit":"%"}`, string(entry.Value))
	assert.Equal(t, len(Keys()), tier.Len())
}
