package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"outreach_gateway/internal/logging"
)

// Defaults used when an Options field is left zero.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultTimeout    = 30 * time.Second

	jitterFraction = 0.3
)

// Outcome classifies how an attempt ended.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeRetryable    Outcome = "retryable"
	OutcomeNonRetryable Outcome = "non_retryable"
)

// Attempt describes one finished attempt. Delay is the wait before the next
// attempt and is zero when there is none.
type Attempt struct {
	Index      int
	Delay      time.Duration
	Outcome    Outcome
	StatusCode int
	Err        error
}

// Options controls retries for one call.
type Options struct {
	// MaxRetries is the number of retries after the first attempt. Negative
	// disables retrying; zero means DefaultMaxRetries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Timeout bounds each attempt. Under DoRead that includes reading the
	// body; under Do the deadline still runs while the caller reads it.
	Timeout time.Duration

	// ShouldRetry decides whether a failed attempt is retried. Non-2xx
	// responses are presented as *StatusError. Defaults to DefaultShouldRetry.
	ShouldRetry func(err error, attempt int) bool

	// OnAttempt, if set, is called after every attempt.
	OnAttempt func(Attempt)
}

// withDefaults fills zero fields, first from base and then from the package defaults.
func (o Options) withDefaults(base Options) Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = base.MaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = base.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = base.MaxDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = base.Timeout
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = base.ShouldRetry
	}
	if o.OnAttempt == nil {
		o.OnAttempt = base.OnAttempt
	}

	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = DefaultShouldRetry
	}
	return o
}

// DefaultShouldRetry retries network errors, attempt timeouts and 5xx
// responses. 4xx responses and caller cancellation are never retried.
func DefaultShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	// Attempt timeouts, connection failures and resets.
	return true
}

// Backoff returns the wait after failed attempt n (zero-based):
// min(base*2^n, max) plus up to 30% jitter drawn from rnd.
func Backoff(n int, opts Options, rnd func() float64) time.Duration {
	delay := opts.BaseDelay
	for i := 0; i < n && delay < opts.MaxDelay; i++ {
		delay *= 2
	}
	if delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}

	if rnd == nil {
		rnd = rand.Float64
	}
	return delay + time.Duration(rnd()*jitterFraction*float64(delay))
}

// Client sends HTTP requests with per-attempt deadlines and exponential
// backoff. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	defaults Options
	rand     func() float64
}

// NewClient creates a client. A nil httpClient gets a pooled transport of its
// own. defaults apply to every call whose Options leave a field zero.
func NewClient(httpClient *http.Client, defaults Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		http:     httpClient,
		defaults: defaults,
		rand:     rand.Float64,
	}
}

// Do sends req, retrying according to opts. The request's own context is
// ignored in favour of ctx.
//
// A response is returned with a nil error whenever the upstream answered,
// including 4xx responses and a 5xx that survived every retry; use
// CheckStatus to turn those into errors. When no attempt got an answer the
// error is a *RetryError wrapping the last failure.
func (c *Client) Do(ctx context.Context, req *http.Request, opts Options) (*http.Response, error) {
	return c.do(ctx, req, opts, 0)
}

// DoRead is Do, except that each attempt also reads up to limit bytes of the
// response body before it ends. A body that stalls past the attempt deadline
// is a *TimeoutError and is retried like any other timeout. The returned
// response's body is already in memory.
func (c *Client) DoRead(ctx context.Context, req *http.Request, opts Options, limit int64) (*http.Response, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("read limit must be positive, got %d", limit)
	}
	return c.do(ctx, req, opts, limit)
}

func (c *Client) do(ctx context.Context, req *http.Request, opts Options, limit int64) (*http.Response, error) {
	opts = opts.withDefaults(c.defaults)

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCanceled, err)
		}

		resp, err := c.attempt(ctx, req, body, attempt, opts.Timeout, limit)

		if err == nil && resp.StatusCode < 400 {
			c.report(opts, Attempt{Index: attempt, Outcome: OutcomeSuccess, StatusCode: resp.StatusCode})
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			discard(resp)
			return nil, fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
		}

		failure := err
		status := 0
		if resp != nil {
			status = resp.StatusCode
			failure = &StatusError{StatusCode: resp.StatusCode}
		}

		if attempt >= opts.MaxRetries || !opts.ShouldRetry(failure, attempt) {
			c.report(opts, Attempt{Index: attempt, Outcome: OutcomeNonRetryable, StatusCode: status, Err: failure})
			if resp != nil {
				return resp, nil
			}
			return nil, &RetryError{Attempts: attempt + 1, Last: err}
		}

		delay := Backoff(attempt, opts, c.rand)
		c.report(opts, Attempt{Index: attempt, Delay: delay, Outcome: OutcomeRetryable, StatusCode: status, Err: failure})
		logging.Debugf("%s %s attempt %d failed (%v), retrying in %s", req.Method, redactURL(req), attempt, failure, delay)

		discard(resp)
		lastErr = failure

		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w after %d attempt(s), last error %v: %w", ErrCanceled, attempt+1, lastErr, err)
		}
	}
}

func (c *Client) report(opts Options, a Attempt) {
	if opts.OnAttempt != nil {
		opts.OnAttempt(a)
	}
}

// attempt sends one request under its own deadline. With a positive limit the
// body is read before the deadline is released.
func (c *Client) attempt(ctx context.Context, req *http.Request, body []byte, index int, timeout time.Duration, limit int64) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)

	r := req.Clone(attemptCtx)
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	resp, err := c.http.Do(r)
	if err != nil {
		cancel()
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Attempt: index, After: timeout}
		}
		return nil, err
	}

	if limit <= 0 {
		// The deadline keeps running while the caller reads the body.
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	resp.Body.Close()
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Attempt: index, After: timeout}
		}
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return body, nil
}

// discard drains a little of an abandoned response so the connection can be reused.
func discard(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, maxErrorBody)
	resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// redactURL drops the query string, which some vendors use for API keys.
func redactURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
