package model

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HTTPError carries the status of a failed upstream call (the job site or
// the embedding provider) so retry logic can classify it without string
// matching. Throttled responses carry the server's Retry-After.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // zero when the header is absent or unparseable
	Err        error
}

// NewHTTPError builds an HTTPError from a non-2xx response, reading the
// seconds form of the Retry-After header. The HTTP-date form is rare on
// the APIs we call and is ignored.
func NewHTTPError(resp *http.Response, err error) *HTTPError {
	e := &HTTPError{StatusCode: resp.StatusCode, Err: err}
	if seconds, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && seconds > 0 {
		e.RetryAfter = time.Duration(seconds) * time.Second
	}
	return e
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Throttled reports whether the upstream asked us to slow down.
func (e *HTTPError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
