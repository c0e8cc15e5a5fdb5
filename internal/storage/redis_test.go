package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisProvider_LazyConnect(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Address = mr.Addr()
	p := NewRedisProvider(cfg)
	defer p.Close()

	assert.False(t, p.GetStats().Connected, "no connection before first use")

	ctx := context.Background()
	var wg sync.WaitGroup
	clients := make([]*redis.Client, 8)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := p.Client(ctx)
			assert.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range clients[1:] {
		assert.Same(t, clients[0], c, "all callers share one client")
	}
	assert.True(t, p.GetStats().Connected)
	assert.NoError(t, p.Health(ctx))
}

func TestRedisProvider_FailureCooldown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Address = addr
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.ReconnectBackoff = time.Hour
	p := NewRedisProvider(cfg)
	defer p.Close()

	ctx := context.Background()
	_, err = p.Client(ctx)
	require.Error(t, err)

	start := time.Now()
	_, err2 := p.Client(ctx)
	require.Error(t, err2)
	assert.Equal(t, err, err2, "cached failure is returned during backoff")
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	assert.Error(t, p.Health(ctx))
}

func TestRedisProvider_Close(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	p := NewStaticRedisProvider(client)
	ctx := context.Background()

	got, err := p.Client(ctx)
	require.NoError(t, err)
	assert.Same(t, client, got)

	require.NoError(t, p.Close())
	_, err = p.Client(ctx)
	assert.ErrorIs(t, err, ErrRedisClosed)
	assert.False(t, p.GetStats().Connected)

	// second close is harmless
	assert.NoError(t, p.Close())
}
