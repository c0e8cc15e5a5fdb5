package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"outreach_gateway/internal/logging"
)

// ClientSource hands out the shared Redis client.
type ClientSource interface {
	Client(ctx context.Context) (*redis.Client, error)
}

// Decision is the outcome of one CheckAndIncrement call.
type Decision struct {
	Allowed   bool
	Remaining int       // -1 when unlimited
	ResetAt   time.Time // zero when unlimited
	// Degraded is set when the counter store could not be reached and the
	// request was let through without being counted.
	Degraded bool
}

// Limiter is used to enforce per-key rate limits.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) Decision
}

// Inspector reads and clears counters for operators.
type Inspector interface {
	GetCurrentUsage(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// NoopLimiter allows all requests.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) Decision {
	return Decision{Allowed: true, Remaining: -1}
}

// GetCurrentUsage always reports zero; nothing is counted.
func (l *NoopLimiter) GetCurrentUsage(ctx context.Context, key string) (int64, error) {
	return 0, nil
}

func (l *NoopLimiter) Reset(ctx context.Context, key string) error {
	return nil
}

// Key builds the counter key for a capability and subject (usually a tenant id).
func Key(capability, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", capability, subject)
}

// incrScript bumps the counter and starts the window on the first hit.
// Returns {count, pttl_ms}.
var incrScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return {count, ttl}
`)

// RateLimiter is a fixed-window counter in Redis, shared by every process
// pointed at the same instance.
type RateLimiter struct {
	source ClientSource
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(source ClientSource) *RateLimiter {
	return &RateLimiter{source: source, now: time.Now}
}

// CheckAndIncrement counts one request against key and reports whether it
// fits within limit for the current window. Requests over the limit are still
// counted. If Redis is unavailable the request is allowed.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		// No limit configured
		return Decision{Allowed: true, Remaining: -1}
	}
	if window < time.Millisecond {
		window = time.Millisecond
	}

	now := rl.now()
	count, ttl, err := rl.increment(ctx, key, window)
	if err != nil {
		logging.Warningf("rate limit check for %s failed, allowing: %v", key, err)
		return Decision{
			Allowed:   true,
			Remaining: limit - 1,
			ResetAt:   now.Add(window),
			Degraded:  true,
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   int(count) <= limit,
		Remaining: remaining,
		ResetAt:   now.Add(ttl),
	}
}

func (rl *RateLimiter) increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if rl.source == nil {
		return 0, 0, errors.New("no redis configured")
	}
	client, err := rl.source.Client(ctx)
	if err != nil {
		return 0, 0, err
	}

	res, err := incrScript.Run(ctx, client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit increment failed: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("rate limit increment: unexpected reply %v", res)
	}

	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// GetCurrentUsage returns the request count in the current window
func (rl *RateLimiter) GetCurrentUsage(ctx context.Context, key string) (int64, error) {
	if rl.source == nil {
		return 0, errors.New("no redis configured")
	}
	client, err := rl.source.Client(ctx)
	if err != nil {
		return 0, err
	}

	count, err := client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}

	return count, nil
}

// Reset resets the rate limit for a key
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	if rl.source == nil {
		return errors.New("no redis configured")
	}
	client, err := rl.source.Client(ctx)
	if err != nil {
		return err
	}
	return client.Del(ctx, key).Err()
}
