package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	client *redis.Client
}

func (s staticSource) Client(ctx context.Context) (*redis.Client, error) {
	return s.client, nil
}

type failingSink struct{}

func (failingSink) Enqueue(ctx context.Context, rec *AuditRecord) error {
	return errors.New("sink offline")
}

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()

	rec := &AuditRecord{
		Timestamp: time.Now(),
		TenantID:  "tenant-1",
		ActorID:   "user-1",
		Action:    "provider.update",
		Resource:  "provider_config",
	}

	err := sink.Enqueue(context.Background(), rec)
	if err != nil {
		t.Errorf("Expected no error from NoopSink.Enqueue, got %v", err)
	}
}

func TestAppendLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}) })

	rec := &AuditRecord{TenantID: "tenant-1", Action: "provider.delete"}
	Append(context.Background(), failingSink{}, rec)

	assert.False(t, rec.Timestamp.IsZero(), "timestamp should be filled in")
	assert.Contains(t, buf.String(), "audit append failed")
	assert.Contains(t, buf.String(), "provider.delete")

	// nil sink is tolerated
	Append(context.Background(), nil, rec)
}

func TestRedisBuffer_EnqueueAndTrim(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	buffer := NewRedisBuffer(staticSource{client: client}, RedisBufferConfig{
		QueueKey: "audit:test",
		MaxSize:  3,
	})
	ctx := context.Background()

	for _, action := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, buffer.Enqueue(ctx, &AuditRecord{TenantID: "t", Action: action}))
	}

	size, err := buffer.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	records, err := buffer.peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].Action)
	assert.Equal(t, "e", records[2].Action)
}

func TestRedisBuffer_StoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	buffer := NewRedisBuffer(staticSource{client: client}, DefaultRedisBufferConfig())
	mr.Close()

	err := buffer.Enqueue(context.Background(), &AuditRecord{TenantID: "t", Action: "x"})
	assert.Error(t, err)
}
