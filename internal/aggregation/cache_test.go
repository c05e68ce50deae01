package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/config"
)

func configCache(backend string) config.Cache {
	return config.Cache{Backend: backend, TTL: time.Minute}
}

func TestMemoryCache_SetGet(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k1", []byte("v1"), []string{"constituency:a"}, time.Minute))

	value, ok := cache.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	_, ok = cache.Get(ctx, "k2")
	assert.False(t, ok)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k1", []byte("v1"), nil, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok := cache.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestMemoryCache_InvalidateTag(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a-hour", []byte("1"), []string{"constituency:a", "election:e"}, 0))
	require.NoError(t, cache.Set(ctx, "a-day", []byte("2"), []string{"constituency:a", "election:e"}, 0))
	require.NoError(t, cache.Set(ctx, "b-hour", []byte("3"), []string{"constituency:b", "election:e"}, 0))

	dropped := cache.InvalidateTag(ctx, "constituency:a")
	assert.Equal(t, 2, dropped)

	_, ok := cache.Get(ctx, "a-hour")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "a-day")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "b-hour")
	assert.True(t, ok)

	// Election tag still reaches the survivor.
	dropped = cache.InvalidateTag(ctx, "election:e")
	assert.Equal(t, 1, dropped)
}

func TestMemoryCache_InvalidateUnknownTag(t *testing.T) {
	cache := NewMemoryCache()
	assert.Equal(t, 0, cache.InvalidateTag(context.Background(), "constituency:nope"))
}

func TestCacheKey_Deterministic(t *testing.T) {
	from := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	a := CacheKey("KT1VoteContract001", domain.GranularityDay, from, to)
	b := CacheKey("KT1VoteContract001", domain.GranularityDay, from, to)
	assert.Equal(t, a, b)

	c := CacheKey("KT1VoteContract001", domain.GranularityHour, from, to)
	assert.NotEqual(t, a, c)

	// Same instant in another zone produces the same key.
	d := CacheKey("KT1VoteContract001", domain.GranularityDay, from.In(time.FixedZone("MSK", 3*3600)), to)
	assert.Equal(t, a, d)
}

func TestNewCache_UnknownBackend(t *testing.T) {
	_, err := NewCache(configCache("bolt"), testLogger(t))
	require.Error(t, err)
}

func TestNewCache_DefaultsToMemory(t *testing.T) {
	cache, err := NewCache(configCache(""), testLogger(t))
	require.NoError(t, err)
	_, ok := cache.(*MemoryCache)
	assert.True(t, ok)
}
