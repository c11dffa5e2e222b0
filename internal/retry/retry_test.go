package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/postly/scout/internal/model"
)

func testPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Millisecond,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := testPolicy().Do(context.Background(), discardLogger(), "op", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := testPolicy().Do(context.Background(), discardLogger(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &model.HTTPError{StatusCode: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := testPolicy().Do(context.Background(), discardLogger(), "op", func(context.Context) error {
		calls++
		return &model.HTTPError{StatusCode: 500}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Error("expected wrapped HTTPError")
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &model.HTTPError{StatusCode: 404}
	err := testPolicy().Do(context.Background(), discardLogger(), "op", func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("404 should not be retried, got %d calls", calls)
	}
}

func TestDo_HonorsRetryAfter(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	calls := 0
	start := time.Now()
	err := p.Do(context.Background(), discardLogger(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return &model.HTTPError{StatusCode: 429, RetryAfter: 50 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected Retry-After delay to be honored, elapsed %v", elapsed)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, discardLogger(), "op", func(context.Context) error {
		return &model.HTTPError{StatusCode: 503}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"429", &model.HTTPError{StatusCode: 429}, true},
		{"500", &model.HTTPError{StatusCode: 500}, true},
		{"503", &model.HTTPError{StatusCode: 503}, true},
		{"404", &model.HTTPError{StatusCode: 404}, false},
		{"400", &model.HTTPError{StatusCode: 400}, false},
		{"network", errors.New("connection refused"), true},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("%s: IsRetryable = %v, want %v", c.name, got, c.want)
		}
	}
}
