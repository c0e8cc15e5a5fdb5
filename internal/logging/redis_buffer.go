package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientSource hands out the shared Redis client, connecting on first use.
type ClientSource interface {
	Client(ctx context.Context) (*redis.Client, error)
}

// appendScript pushes a record and trims the list to the newest max_size entries.
var appendScript = redis.NewScript(`
	local key = KEYS[1]
	local value = ARGV[1]
	local max_size = tonumber(ARGV[2])

	redis.call('RPUSH', key, value)

	local len = redis.call('LLEN', key)
	if max_size > 0 and len > max_size then
		redis.call('LTRIM', key, len - max_size, -1)
	end

	return len
`)

// RedisBuffer is a Sink that appends audit records to a capped Redis list.
// A downstream consumer owns draining the list.
type RedisBuffer struct {
	source   ClientSource
	queueKey string
	maxSize  int64 // 0 = unlimited
}

// RedisBufferConfig holds configuration for Redis buffer
type RedisBufferConfig struct {
	QueueKey string
	MaxSize  int64
}

// DefaultRedisBufferConfig returns default configuration
func DefaultRedisBufferConfig() RedisBufferConfig {
	return RedisBufferConfig{
		QueueKey: "audit:queue",
		MaxSize:  100000,
	}
}

// NewRedisBuffer creates a new Redis-backed audit buffer
func NewRedisBuffer(source ClientSource, cfg RedisBufferConfig) *RedisBuffer {
	if cfg.QueueKey == "" {
		cfg.QueueKey = DefaultRedisBufferConfig().QueueKey
	}
	return &RedisBuffer{
		source:   source,
		queueKey: cfg.QueueKey,
		maxSize:  cfg.MaxSize,
	}
}

// Enqueue adds an audit record to the Redis list
func (rb *RedisBuffer) Enqueue(ctx context.Context, record *AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	client, err := rb.source.Client(ctx)
	if err != nil {
		return fmt.Errorf("audit buffer unavailable: %w", err)
	}

	if err := appendScript.Run(ctx, client, []string{rb.queueKey}, data, rb.maxSize).Err(); err != nil {
		return fmt.Errorf("failed to enqueue audit record: %w", err)
	}

	return nil
}

// peek returns up to count of the oldest records without removing them
func (rb *RedisBuffer) peek(ctx context.Context, count int) ([]*AuditRecord, error) {
	if count <= 0 {
		count = 100
	}

	client, err := rb.source.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit buffer unavailable: %w", err)
	}

	result, err := client.LRange(ctx, rb.queueKey, 0, int64(count-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to peek: %w", err)
	}

	records := make([]*AuditRecord, 0, len(result))
	for i, data := range result {
		var record AuditRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d: %w", i, err)
		}
		records = append(records, &record)
	}

	return records, nil
}

// Size returns the current queue size, reported by the health check
func (rb *RedisBuffer) Size(ctx context.Context) (int64, error) {
	client, err := rb.source.Client(ctx)
	if err != nil {
		return 0, err
	}
	return client.LLen(ctx, rb.queueKey).Result()
}
