package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"outreach_gateway/internal/logging"
	"outreach_gateway/internal/models"
)

const scanBatchSize = 200

// ClientSource hands out the shared Redis client, connecting on first use.
type ClientSource interface {
	Client(ctx context.Context) (*redis.Client, error)
}

// Cache is a JSON value cache in Redis. It only ever accelerates: when Redis
// is unreachable every read is a miss and every write is dropped, and callers
// fall back to the source of truth. Errors are logged, never returned.
type Cache struct {
	source ClientSource
}

// NewCache creates a cache. A nil source yields an always-cold cache.
func NewCache(source ClientSource) *Cache {
	return &Cache{source: source}
}

func (c *Cache) client(ctx context.Context, op string) *redis.Client {
	if c == nil || c.source == nil {
		return nil
	}
	client, err := c.source.Client(ctx)
	if err != nil {
		logging.Warningf("cache %s skipped, redis unavailable: %v", op, err)
		return nil
	}
	return client
}

// Get decodes the value stored at key into dest. It reports false on a miss,
// an expired entry, an undecodable entry, or an unreachable store.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	client := c.client(ctx, "get")
	if client == nil {
		return false
	}

	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.Warningf("cache get %s failed: %v", key, err)
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		logging.Warningf("cache entry %s is not decodable, dropping it: %v", key, err)
		_ = client.Del(ctx, key).Err()
		return false
	}
	return true
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		logging.Errorf("cache set %s: value not encodable: %v", key, err)
		return
	}

	client := c.client(ctx, "set")
	if client == nil {
		return
	}

	if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
		logging.Warningf("cache set %s failed: %v", key, err)
	}
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}

	client := c.client(ctx, "delete")
	if client == nil {
		return
	}

	if err := client.Del(ctx, keys...).Err(); err != nil {
		logging.Warningf("cache delete %v failed: %v", keys, err)
	}
}

// Exists reports whether key is currently cached.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	client := c.client(ctx, "exists")
	if client == nil {
		return false
	}

	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		logging.Warningf("cache exists %s failed: %v", key, err)
		return false
	}
	return n > 0
}

// DeletePattern removes every key matching the glob pattern and returns how
// many were removed. It walks the keyspace with SCAN rather than KEYS.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) int {
	client := c.client(ctx, "delete pattern")
	if client == nil {
		return 0
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			logging.Warningf("cache scan %s failed: %v", pattern, err)
			return deleted
		}

		if len(keys) > 0 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				logging.Warningf("cache delete pattern %s failed: %v", pattern, err)
				return deleted
			}
			deleted += int(n)
		}

		cursor = next
		if cursor == 0 {
			return deleted
		}
	}
}

// Generation reads the counter at key. A counter that was never bumped is
// generation zero. ok is false when the store cannot be read.
func (c *Cache) Generation(ctx context.Context, key string) (gen int64, ok bool) {
	client := c.client(ctx, "generation")
	if client == nil {
		return 0, false
	}

	gen, err := client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, true
		}
		logging.Warningf("cache generation %s failed: %v", key, err)
		return 0, false
	}
	return gen, true
}

// Bump advances the counter at key and returns the new generation, or zero
// when the store is unreachable. Counters never expire.
func (c *Cache) Bump(ctx context.Context, key string) int64 {
	client := c.client(ctx, "bump")
	if client == nil {
		return 0
	}

	gen, err := client.Incr(ctx, key).Result()
	if err != nil {
		logging.Warningf("cache bump %s failed: %v", key, err)
		return 0
	}
	return gen
}

// ProviderCacheKey is the cache key for one resolution. An empty providerID
// stands for "the tenant's default".
func ProviderCacheKey(tenantID string, capability models.Capability, providerID string) string {
	if providerID == "" {
		providerID = "default"
	}
	return fmt.Sprintf("provider:%s:%s:%s", tenantID, capability, providerID)
}

// ProviderCachePattern matches every resolution cached for a tenant and capability.
func ProviderCachePattern(tenantID string, capability models.Capability) string {
	return fmt.Sprintf("provider:%s:%s:*", escapeGlob(tenantID), capability)
}

// ProviderGenerationKey counts the settings changes for a tenant and
// capability. It sits outside ProviderCachePattern so invalidation keeps it.
func ProviderGenerationKey(tenantID string, capability models.Capability) string {
	return fmt.Sprintf("provider-gen:%s:%s", tenantID, capability)
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
