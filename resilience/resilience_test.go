package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kbukum/backendkit/errors"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return stderrors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 || len(retried) != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d/%v", calls, retried)
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(2), func(context.Context) error {
		calls++
		return stderrors.New("always")
	})
	if err == nil || err.Error() != "always" || calls != 2 {
		t.Errorf("expected last error after 2 calls, got %v after %d", err, calls)
	}
}

func TestRetry_StopsOnConfigurationError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return errors.Configuration("db", "dsn is required")
	})
	if calls != 1 {
		t.Errorf("configuration errors must not be retried, got %d calls", calls)
	}
	if !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, fastRetry(3), func(context.Context) error { return nil })
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestForRetryCount(t *testing.T) {
	if ForRetryCount(0).MaxAttempts != 1 || ForRetryCount(3).MaxAttempts != 4 || ForRetryCount(-2).MaxAttempts != 1 {
		t.Error("unexpected attempt counts")
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tc := range tests {
		if got := Backoff(tc.attempt, cfg); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	t.Run("completes in time", func(t *testing.T) {
		err := WithTimeout(context.Background(), time.Second, "start", func(context.Context) error { return nil })
		if err != nil {
			t.Fatal(err)
		}
	})

	t.Run("propagates error", func(t *testing.T) {
		want := stderrors.New("refused")
		err := WithTimeout(context.Background(), time.Second, "start", func(context.Context) error { return want })
		if !stderrors.Is(err, want) {
			t.Errorf("expected %v, got %v", want, err)
		}
	})

	t.Run("times out", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		err := WithTimeout(context.Background(), 10*time.Millisecond, "start", func(context.Context) error {
			<-release
			return nil
		})
		if !errors.HasCode(err, errors.ErrCodeTimeout) {
			t.Errorf("expected TIMEOUT, got %v", err)
		}
	})

	t.Run("no deadline", func(t *testing.T) {
		ran := false
		_ = WithTimeout(context.Background(), 0, "stop", func(context.Context) error { ran = true; return nil })
		if !ran {
			t.Error("fn should run synchronously without a deadline")
		}
	})

	t.Run("recovers panic", func(t *testing.T) {
		err := WithTimeout(context.Background(), time.Second, "start", func(context.Context) error { panic("boom") })
		if !errors.HasCode(err, errors.ErrCodeInternal) {
			t.Errorf("expected INTERNAL_ERROR, got %v", err)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	limited := 0
	rl := NewRateLimiter(RateLimiterConfig{Name: "admin", Rate: 2, Burst: 2, OnLimit: func(string) { limited++ }})
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("burst should allow two")
	}
	if rl.Allow() {
		t.Error("third call should be limited")
	}
	if limited != 1 {
		t.Errorf("expected OnLimit once, got %d", limited)
	}

	now = now.Add(500 * time.Millisecond)
	if !rl.Allow() {
		t.Error("one token should have refilled")
	}
	now = now.Add(10 * time.Second)
	if rl.Tokens() != 2 {
		t.Errorf("tokens should cap at burst, got %v", rl.Tokens())
	}
	if rl.Rate() != 2 || rl.Burst() != 2 {
		t.Error("unexpected config accessors")
	}
}
