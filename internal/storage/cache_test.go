package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach_gateway/internal/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

type cachedInfo struct {
	Kind  string `json:"kind"`
	Model string `json:"model"`
}

func TestCache_SetGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	cache.Set(ctx, "k1", cachedInfo{Kind: "openai", Model: "gpt-4o-mini"}, time.Minute)

	var got cachedInfo
	require.True(t, cache.Get(ctx, "k1", &got))
	assert.Equal(t, "openai", got.Kind)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.True(t, cache.Exists(ctx, "k1"))

	ttl := mr.TTL("k1")
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl = %v", ttl)

	assert.False(t, cache.Get(ctx, "missing", &got))
	assert.False(t, cache.Exists(ctx, "missing"))
}

func TestCache_Expiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	cache.Set(ctx, "short", cachedInfo{Kind: "resend"}, 10*time.Second)
	mr.FastForward(11 * time.Second)

	var got cachedInfo
	assert.False(t, cache.Get(ctx, "short", &got))
}

func TestCache_NonPositiveTTLStoresNothing(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	cache.Set(ctx, "zero", cachedInfo{Kind: "x"}, 0)
	cache.Set(ctx, "negative", cachedInfo{Kind: "x"}, -time.Second)

	assert.False(t, mr.Exists("zero"))
	assert.False(t, mr.Exists("negative"))
}

func TestCache_Delete(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	cache.Set(ctx, "a", 1, time.Minute)
	cache.Set(ctx, "b", 2, time.Minute)
	cache.Delete(ctx, "a", "b", "never-set")

	assert.False(t, cache.Exists(ctx, "a"))
	assert.False(t, cache.Exists(ctx, "b"))

	// no keys is a no-op
	cache.Delete(ctx)
}

func TestCache_DeletePattern(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	for _, id := range []string{"", "p1", "p2"} {
		cache.Set(ctx, ProviderCacheKey("t1", models.CapabilityAI, id), cachedInfo{Kind: "openai"}, time.Minute)
	}
	cache.Set(ctx, ProviderCacheKey("t1", models.CapabilityEmail, ""), cachedInfo{Kind: "resend"}, time.Minute)
	cache.Set(ctx, ProviderCacheKey("t2", models.CapabilityAI, ""), cachedInfo{Kind: "gemini"}, time.Minute)

	n := cache.DeletePattern(ctx, ProviderCachePattern("t1", models.CapabilityAI))
	assert.Equal(t, 3, n)

	assert.False(t, cache.Exists(ctx, ProviderCacheKey("t1", models.CapabilityAI, "")))
	assert.True(t, cache.Exists(ctx, ProviderCacheKey("t1", models.CapabilityEmail, "")))
	assert.True(t, cache.Exists(ctx, ProviderCacheKey("t2", models.CapabilityAI, "")))

	assert.Equal(t, 0, cache.DeletePattern(ctx, ProviderCachePattern("t1", models.CapabilityAI)))
}

func TestCache_DeletePatternManyKeys(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	for i := 0; i < scanBatchSize*2+7; i++ {
		cache.Set(ctx, ProviderCacheKey("bulk", models.CapabilityPeopleSearch, fmt.Sprintf("p%d", i)), i, time.Minute)
	}

	assert.Equal(t, scanBatchSize*2+7, cache.DeletePattern(ctx, ProviderCachePattern("bulk", models.CapabilityPeopleSearch)))
	assert.Empty(t, mr.Keys())
}

func TestCache_PatternEscapesTenant(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	cache.Set(ctx, ProviderCacheKey("acme", models.CapabilityAI, ""), 1, time.Minute)
	cache.Set(ctx, ProviderCacheKey("a*", models.CapabilityAI, ""), 2, time.Minute)

	assert.Equal(t, 1, cache.DeletePattern(ctx, ProviderCachePattern("a*", models.CapabilityAI)))
	assert.True(t, cache.Exists(ctx, ProviderCacheKey("acme", models.CapabilityAI, "")))
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	require.NoError(t, mr.Set("broken", "{not json"))

	var got cachedInfo
	assert.False(t, cache.Get(ctx, "broken", &got))
	assert.False(t, mr.Exists("broken"), "undecodable entry should be dropped")
}

func TestCache_StoreDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()

	cache.Set(ctx, "k", cachedInfo{Kind: "apollo"}, time.Minute)
	mr.Close()

	var got cachedInfo
	assert.False(t, cache.Get(ctx, "k", &got))
	assert.False(t, cache.Exists(ctx, "k"))
	assert.Equal(t, 0, cache.DeletePattern(ctx, "*"))

	// writes are dropped without panicking
	cache.Set(ctx, "k2", cachedInfo{}, time.Minute)
	cache.Delete(ctx, "k")

	gen, ok := cache.Generation(ctx, "gen")
	assert.False(t, ok)
	assert.Zero(t, gen)
	assert.Zero(t, cache.Bump(ctx, "gen"))
}

func TestCache_Generation(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(NewStaticRedisProvider(client))
	ctx := context.Background()
	key := ProviderGenerationKey("t1", models.CapabilityAI)

	gen, ok := cache.Generation(ctx, key)
	require.True(t, ok)
	assert.Zero(t, gen)

	assert.Equal(t, int64(1), cache.Bump(ctx, key))
	assert.Equal(t, int64(2), cache.Bump(ctx, key))
	gen, ok = cache.Generation(ctx, key)
	require.True(t, ok)
	assert.Equal(t, int64(2), gen)
	assert.Zero(t, mr.TTL(key), "generations never expire")

	// Invalidation leaves the counter alone.
	cache.Set(ctx, ProviderCacheKey("t1", models.CapabilityAI, ""), 1, time.Minute)
	assert.Equal(t, 1, cache.DeletePattern(ctx, ProviderCachePattern("t1", models.CapabilityAI)))
	assert.True(t, mr.Exists(key))

	require.NoError(t, mr.Set(key, "garbage"))
	_, ok = cache.Generation(ctx, key)
	assert.False(t, ok)
}

func TestCache_NilSourceIsCold(t *testing.T) {
	ctx := context.Background()

	for _, cache := range []*Cache{NewCache(nil), nil} {
		cache.Set(ctx, "k", 1, time.Minute)

		var v int
		assert.False(t, cache.Get(ctx, "k", &v))
		assert.False(t, cache.Exists(ctx, "k"))
		assert.Equal(t, 0, cache.DeletePattern(ctx, "*"))
		cache.Delete(ctx, "k")
	}
}

func TestProviderCacheKey(t *testing.T) {
	assert.Equal(t, "provider:t1:ai:default", ProviderCacheKey("t1", models.CapabilityAI, ""))
	assert.Equal(t, "provider:t1:email:abc", ProviderCacheKey("t1", models.CapabilityEmail, "abc"))
	assert.Equal(t, "provider:t1:people_search:*", ProviderCachePattern("t1", models.CapabilityPeopleSearch))
	assert.Equal(t, "provider-gen:t1:ai", ProviderGenerationKey("t1", models.CapabilityAI))
}
