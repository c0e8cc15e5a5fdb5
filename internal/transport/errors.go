package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody caps how much of an upstream error body is kept.
const maxErrorBody = 4 << 10

// ErrCanceled is wrapped around the caller's context error when a request is
// abandoned between or during attempts.
var ErrCanceled = errors.New("request canceled")

// StatusError is an upstream response with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// TimeoutError is returned when one attempt exceeds its deadline.
type TimeoutError struct {
	Attempt int
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("attempt %d timed out after %s", e.Attempt, e.After)
}

func (e *TimeoutError) Timeout() bool { return true }

// RetryError is returned when no attempt produced a response.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error { return e.Last }

// CheckStatus turns a non-2xx response into a *StatusError, consuming and
// closing the body. 2xx responses are left untouched.
func CheckStatus(resp *http.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
