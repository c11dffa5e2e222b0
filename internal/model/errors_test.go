package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestNewHTTPError_ReadsRetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")

	e := NewHTTPError(resp, nil)
	if e.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", e.StatusCode)
	}
	if e.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", e.RetryAfter)
	}
	if !e.Throttled() {
		t.Error("Throttled() = false, want true")
	}
}

func TestNewHTTPError_IgnoresBadRetryAfter(t *testing.T) {
	for _, value := range []string{"", "soon", "Wed, 21 Oct 2026 07:28:00 GMT", "-5"} {
		resp := &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}}
		if value != "" {
			resp.Header.Set("Retry-After", value)
		}
		e := NewHTTPError(resp, nil)
		if e.RetryAfter != 0 {
			t.Errorf("Retry-After %q: RetryAfter = %v, want 0", value, e.RetryAfter)
		}
		if e.Throttled() {
			t.Errorf("Retry-After %q: Throttled() = true for 503", value)
		}
	}
}

func TestHTTPError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	e := NewHTTPError(&http.Response{StatusCode: 502, Header: http.Header{}}, cause)

	if got := e.Error(); got != "HTTP 502: connection reset" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(fmt.Errorf("detail fetch: %w", e), cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}

	bare := &HTTPError{StatusCode: 404}
	if got := bare.Error(); got != "HTTP 404" {
		t.Errorf("Error() = %q", got)
	}
}
