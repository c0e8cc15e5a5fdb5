package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ErrRedisClosed is returned by Client after Close
var ErrRedisClosed = errors.New("redis provider closed")

// RedisConfig holds Redis configuration
type RedisConfig struct {
	// Connection settings
	Address  string // host:port
	Password string
	DB       int // Database number (0-15)

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// After a failed connect, callers get the cached failure for this long
	// instead of each paying a dial timeout.
	ReconnectBackoff time.Duration
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:  "localhost:6379",
		Password: "",
		DB:       0,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,

		ReconnectBackoff: 5 * time.Second,
	}
}

// RedisProvider owns the process-wide Redis client. The client is created on
// first use, shared afterwards, and released by Close. Concurrent first calls
// share a single connect attempt.
type RedisProvider struct {
	cfg   RedisConfig
	group singleflight.Group

	mu         sync.RWMutex
	client     *redis.Client
	lastErr    error
	lastFailed time.Time
	closed     bool
}

// NewRedisProvider creates a provider. No connection is made until Client is called.
func NewRedisProvider(cfg RedisConfig) *RedisProvider {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultRedisConfig().ReconnectBackoff
	}
	return &RedisProvider{cfg: cfg}
}

// NewStaticRedisProvider wraps an existing client, e.g. one pointed at miniredis in tests.
func NewStaticRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{cfg: DefaultRedisConfig(), client: client}
}

// Client returns the shared client, connecting if needed.
func (p *RedisProvider) Client(ctx context.Context) (*redis.Client, error) {
	p.mu.RLock()
	client, closed := p.client, p.closed
	lastErr, lastFailed := p.lastErr, p.lastFailed
	p.mu.RUnlock()

	if closed {
		return nil, ErrRedisClosed
	}
	if client != nil {
		return client, nil
	}
	if lastErr != nil && time.Since(lastFailed) < p.cfg.ReconnectBackoff {
		return nil, lastErr
	}

	v, err, _ := p.group.Do("connect", func() (interface{}, error) {
		return p.connect()
	})
	if err != nil {
		return nil, err
	}
	return v.(*redis.Client), nil
}

func (p *RedisProvider) connect() (*redis.Client, error) {
	p.mu.RLock()
	if p.client != nil {
		c := p.client
		p.mu.RUnlock()
		return c, nil
	}
	p.mu.RUnlock()

	client := redis.NewClient(&redis.Options{
		Addr:     p.cfg.Address,
		Password: p.cfg.Password,
		DB:       p.cfg.DB,

		PoolSize:     p.cfg.PoolSize,
		MinIdleConns: p.cfg.MinIdleConns,

		DialTimeout:  p.cfg.DialTimeout,
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.WriteTimeout,
	})

	// The connect attempt is detached from any one caller's context.
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DialTimeout+time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		err = fmt.Errorf("failed to connect to Redis: %w", err)

		p.mu.Lock()
		p.lastErr = err
		p.lastFailed = time.Now()
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		client.Close()
		return nil, ErrRedisClosed
	}
	p.client = client
	p.lastErr = nil
	return client, nil
}

// Close releases the client. Later Client calls fail with ErrRedisClosed.
func (p *RedisProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// Health returns the health status of Redis
func (p *RedisProvider) Health(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

// RedisStats represents Redis connection pool statistics
type RedisStats struct {
	Connected bool `json:"connected"`

	Hits     uint32 `json:"hits"`
	Misses   uint32 `json:"misses"`
	Timeouts uint32 `json:"timeouts"`

	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

// GetStats returns current Redis connection pool statistics
func (p *RedisProvider) GetStats() RedisStats {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil {
		return RedisStats{}
	}

	stats := client.PoolStats()
	return RedisStats{
		Connected: true,

		Hits:     stats.Hits,
		Misses:   stats.Misses,
		Timeouts: stats.Timeouts,

		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
		StaleConns: stats.StaleConns,
	}
}
