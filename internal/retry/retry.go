package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/postly/scout/internal/model"
)

// Policy describes a bounded exponential backoff. The zero value is not
// usable; construct with DefaultPolicy or literal fields.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the first retry
	Multiplier  float64       // backoff growth factor
	MaxDelay    time.Duration // backoff cap
}

// DefaultPolicy matches the posture used for outbound API calls: three
// attempts, 2s base, doubling, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn, retrying transient failures per the policy. op names the
// operation for log lines. The last error is returned when attempts
// exhaust; non-retryable errors return immediately.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.backoffDelay(attempt, lastErr)
		logger.Warn("retrying after transient error",
			"op", op,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: retry cancelled: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error carries a Retry-After duration (HTTP 429), that takes
// precedence over the computed backoff.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && delay > max {
		delay = max
	}

	jitter := delay * 0.3
	return time.Duration(delay + (rand.Float64()*2-1)*jitter)
}

// IsRetryable reports whether the error represents a transient failure
// worth retrying: 429 and 5xx HTTP errors and non-HTTP network errors.
// Context cancellation and other 4xx responses are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Throttled() {
			return true
		}
		if httpErr.StatusCode >= 500 {
			return true
		}
		return false
	}

	// Non-HTTP errors (network, DNS, timeouts) are worth retrying.
	return true
}
