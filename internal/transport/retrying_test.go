package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted serves the given statuses in order, repeating the last one.
func scripted(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
		_, _ = io.WriteString(w, http.StatusText(statuses[n]))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   200 * time.Millisecond,
		Timeout:    2 * time.Second,
	}
}

func newGet(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	srv, calls := scripted(t, 503, 503, 200)
	client := NewClient(nil, Options{})

	var attempts []Attempt
	opts := fastOptions()
	opts.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

	resp, err := client.Do(context.Background(), newGet(t, srv.URL), opts)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))

	require.Len(t, attempts, 3)
	for n, a := range attempts[:2] {
		assert.Equal(t, n, a.Index)
		assert.Equal(t, OutcomeRetryable, a.Outcome)
		assert.Equal(t, 503, a.StatusCode)

		floor := opts.BaseDelay << n
		assert.GreaterOrEqual(t, a.Delay, floor)
		assert.LessOrEqual(t, a.Delay, floor+floor*3/10)
	}
	assert.Equal(t, OutcomeSuccess, attempts[2].Outcome)
	assert.Zero(t, attempts[2].Delay)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	srv, calls := scripted(t, 404)
	client := NewClient(nil, Options{})

	var attempts []Attempt
	opts := fastOptions()
	opts.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

	resp, err := client.Do(context.Background(), newGet(t, srv.URL), opts)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	require.Len(t, attempts, 1)
	assert.Equal(t, OutcomeNonRetryable, attempts[0].Outcome)

	err = CheckStatus(resp)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 404, statusErr.StatusCode)
	assert.Equal(t, "Not Found", statusErr.Body)
}

func TestClient_ServerErrorExhaustionReturnsLastResponse(t *testing.T) {
	srv, calls := scripted(t, 500, 502, 503)
	client := NewClient(nil, Options{})

	opts := fastOptions()
	opts.MaxRetries = 2

	resp, err := client.Do(context.Background(), newGet(t, srv.URL), opts)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(3), atomic.LoadInt32(calls), "maxRetries+1 attempts")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Service Unavailable", string(body))
}

func TestClient_NetworkErrorExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(nil, Options{})

	var attempts int
	opts := fastOptions()
	opts.MaxRetries = 2
	opts.OnAttempt = func(Attempt) { attempts++ }

	resp, err := client.Do(context.Background(), newGet(t, url), opts)
	require.Error(t, err)
	assert.Nil(t, resp)

	var retryErr *RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 3, retryErr.Attempts)
	assert.NotNil(t, retryErr.Last)
	assert.Equal(t, 3, attempts)
}

func TestClient_TimeoutIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(nil, Options{})

	var first Attempt
	opts := fastOptions()
	opts.Timeout = 100 * time.Millisecond
	opts.OnAttempt = func(a Attempt) {
		if a.Index == 0 {
			first = a
		}
	}

	resp, err := client.Do(context.Background(), newGet(t, srv.URL), opts)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, OutcomeRetryable, first.Outcome)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(first.Err, &timeoutErr))
	assert.Equal(t, 100*time.Millisecond, timeoutErr.After)
}

func TestClient_TimeoutExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(nil, Options{})
	opts := fastOptions()
	opts.MaxRetries = 1
	opts.Timeout = 50 * time.Millisecond

	_, err := client.Do(context.Background(), newGet(t, srv.URL), opts)

	var timeoutErr *TimeoutError
	assert.True(t, errors.As(err, &timeoutErr))
	var retryErr *RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 2, retryErr.Attempts)
}

// stalledBody flushes a 200 and its first bytes, then stops writing.
func stalledBody(t *testing.T, stall time.Duration) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"text":`)
		w.(http.Flusher).Flush()
		select {
		case <-time.After(stall):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_DoRead_StalledBodyIsRetriedAsTimeout(t *testing.T) {
	srv, calls := stalledBody(t, 300*time.Millisecond)
	client := NewClient(nil, Options{})

	var outcomes []Outcome
	opts := fastOptions()
	opts.MaxRetries = 2
	opts.Timeout = 50 * time.Millisecond
	opts.OnAttempt = func(a Attempt) { outcomes = append(outcomes, a.Outcome) }

	resp, err := client.DoRead(context.Background(), newGet(t, srv.URL), opts, 1<<20)
	require.Error(t, err)
	assert.Nil(t, resp)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %T: %v", err, err)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.After)

	var retryErr *RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 3, retryErr.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []Outcome{OutcomeRetryable, OutcomeRetryable, OutcomeNonRetryable}, outcomes)
}

func TestClient_DoRead_RecoversAfterStall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			return
		}
		_, _ = io.WriteString(w, "complete body")
	}))
	defer srv.Close()

	client := NewClient(nil, Options{})
	opts := fastOptions()
	opts.Timeout = 50 * time.Millisecond

	resp, err := client.DoRead(context.Background(), newGet(t, srv.URL), opts, 1<<20)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "complete body", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_DoRead_CapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	client := NewClient(nil, Options{})

	resp, err := client.DoRead(context.Background(), newGet(t, srv.URL), fastOptions(), 10)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, body, 10)

	_, err = client.DoRead(context.Background(), newGet(t, srv.URL), fastOptions(), 0)
	assert.Error(t, err)
}

func TestClient_CancelStopsSleeping(t *testing.T) {
	srv, calls := scripted(t, 503)
	client := NewClient(nil, Options{})

	opts := fastOptions()
	opts.BaseDelay = 10 * time.Second
	opts.MaxDelay = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	resp, err := client.Do(ctx, newGet(t, srv.URL), opts)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestClient_AlreadyCanceled(t *testing.T) {
	srv, calls := scripted(t, 200)
	client := NewClient(nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Do(ctx, newGet(t, srv.URL), fastOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestClient_ReplaysBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"to":"a@b.c"}`))
	require.NoError(t, err)

	resp, err := NewClient(nil, Options{}).Do(context.Background(), req, fastOptions())
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{`{"to":"a@b.c"}`, `{"to":"a@b.c"}`}, bodies)
}

func TestClient_CustomPredicate(t *testing.T) {
	srv, calls := scripted(t, 429, 429, 200)

	opts := fastOptions()
	opts.ShouldRetry = func(err error, attempt int) bool {
		var statusErr *StatusError
		return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
	}

	resp, err := NewClient(nil, Options{}).Do(context.Background(), newGet(t, srv.URL), opts)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestClient_NegativeMaxRetriesDisablesRetry(t *testing.T) {
	srv, calls := scripted(t, 503, 200)

	opts := fastOptions()
	opts.MaxRetries = -1

	resp, err := NewClient(nil, Options{}).Do(context.Background(), newGet(t, srv.URL), opts)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestClient_DefaultsFromConstructor(t *testing.T) {
	srv, calls := scripted(t, 500)

	client := NewClient(nil, Options{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	resp, err := client.Do(context.Background(), newGet(t, srv.URL), Options{})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestBackoff(t *testing.T) {
	opts := Options{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	zero := func() float64 { return 0 }
	top := func() float64 { return 0.999999 }

	assert.Equal(t, 1*time.Second, Backoff(0, opts, zero))
	assert.Equal(t, 2*time.Second, Backoff(1, opts, zero))
	assert.Equal(t, 4*time.Second, Backoff(2, opts, zero))
	assert.Equal(t, 8*time.Second, Backoff(3, opts, zero))
	assert.Equal(t, 10*time.Second, Backoff(4, opts, zero))
	assert.Equal(t, 10*time.Second, Backoff(60, opts, zero))

	for n := 0; n < 6; n++ {
		floor := Backoff(n, opts, zero)
		got := Backoff(n, opts, top)
		assert.GreaterOrEqual(t, got, floor)
		assert.LessOrEqual(t, got, floor+floor*3/10)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	assert.False(t, DefaultShouldRetry(nil, 0))
	assert.False(t, DefaultShouldRetry(&StatusError{StatusCode: 400}, 0))
	assert.False(t, DefaultShouldRetry(&StatusError{StatusCode: 429}, 0))
	assert.True(t, DefaultShouldRetry(&StatusError{StatusCode: 500}, 0))
	assert.True(t, DefaultShouldRetry(&StatusError{StatusCode: 503}, 2))
	assert.True(t, DefaultShouldRetry(&TimeoutError{Attempt: 0, After: time.Second}, 0))
	assert.True(t, DefaultShouldRetry(errors.New("connection reset by peer"), 1))
	assert.False(t, DefaultShouldRetry(context.Canceled, 0))
}

func TestCheckStatus(t *testing.T) {
	ok := &http.Response{StatusCode: 204, Body: io.NopCloser(strings.NewReader(""))}
	assert.NoError(t, CheckStatus(ok))

	bad := &http.Response{StatusCode: 401, Body: io.NopCloser(strings.NewReader(strings.Repeat("x", maxErrorBody*2)))}
	err := CheckStatus(bad)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 401, statusErr.StatusCode)
	assert.Len(t, statusErr.Body, maxErrorBody)

	assert.Error(t, CheckStatus(nil))
}
