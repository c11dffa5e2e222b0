package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter enforces a minimum delay between consecutive requests on one
// client. Every outbound call passes through Wait serially with respect to
// timing, even when issuance is concurrent: concurrency bounds parallelism,
// the limiter bounds request rate.
//
// Each client (spider, embedding client) owns its own instance; limiters
// are never shared process-wide.
type Limiter struct {
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// PerMinute creates a limiter allowing at most rpm requests per minute.
// A non-positive rpm disables throttling.
func PerMinute(rpm int) *Limiter {
	if rpm <= 0 {
		return &Limiter{}
	}
	return &Limiter{minDelay: time.Minute / time.Duration(rpm)}
}

// NewLimiter creates a limiter that enforces minDelay between requests.
func NewLimiter(minDelay time.Duration) *Limiter {
	return &Limiter{minDelay: minDelay}
}

// Wait blocks until enough time has passed since the previous request.
// Returns an error if the context is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.minDelay <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()

	if l.lastCall.IsZero() || now.Sub(l.lastCall) >= l.minDelay {
		// First request, or enough time has passed; proceed immediately.
		l.lastCall = now
		l.mu.Unlock()
		return nil
	}

	remaining := l.minDelay - now.Sub(l.lastCall)
	// Reserve the slot before waiting so concurrent callers queue behind it.
	l.lastCall = now.Add(remaining)
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait: %w", ctx.Err())
	case <-time.After(remaining):
	}

	return nil
}
