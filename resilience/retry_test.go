package resilience

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/kbukum/eventkit/errors"
)

var errRetryable = errors.InitializationFailed("db", fmt.Errorf("dial refused"))

func fastConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 2.0}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) (string, error) {
		callCount++
		return "success", nil
	})
	if err != nil || result != "success" {
		t.Errorf("expected success, got %q (%v)", result, err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_SucceedsAfterRetry(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		callCount++
		if callCount < 3 {
			return "", errRetryable
		}
		return "success", nil
	})
	if err != nil || result != "success" {
		t.Errorf("expected success, got %q (%v)", result, err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetry_ExceedsMaxAttempts(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		callCount++
		return "", errRetryable
	})
	if !errors.Is(err, errRetryable) {
		t.Errorf("expected last error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetry_DefaultRetryIf(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{"retryable app error", errRetryable, 3},
		{"configuration error", errors.NotRegistered("db"), 1},
		{"plain error", fmt.Errorf("boom"), 1},
		{"canceled", context.Canceled, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			_ = RetryFunc(context.Background(), fastConfig(), func(ctx context.Context) error {
				calls++
				return tc.err
			})
			if calls != tc.calls {
				t.Errorf("expected %d calls, got %d", tc.calls, calls)
			}
		})
	}
}

func TestRetry_CustomRetryIf(t *testing.T) {
	plain := fmt.Errorf("flaky")
	cfg := fastConfig()
	cfg.RetryIf = func(err error) bool { return errors.Is(err, plain) }

	calls := 0
	_ = RetryFunc(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return plain
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_RespectsContext(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	callCount := 0
	_, err := Retry(ctx, cfg, func(ctx context.Context) (string, error) {
		callCount++
		return "", errRetryable
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before the backoff wait, got %d", callCount)
	}
}

func TestRetry_UsesClock(t *testing.T) {
	mock := clock.NewMock()
	var mu sync.Mutex
	var backoffs []time.Duration
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		BackoffFactor:  2,
		Clock:          mock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			mu.Lock()
			backoffs = append(backoffs, backoff)
			mu.Unlock()
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- RetryFunc(context.Background(), cfg, func(ctx context.Context) error { return errRetryable })
	}()

	// Advance until the retry loop gives up; each Add fires a pending timer.
	for i := 0; i < 100; i++ {
		select {
		case err := <-done:
			if !errors.Is(err, errRetryable) {
				t.Errorf("expected retryable error, got %v", err)
			}
			mu.Lock()
			defer mu.Unlock()
			if len(backoffs) != 2 || backoffs[0] != time.Second || backoffs[1] != 2*time.Second {
				t.Errorf("unexpected backoffs %v", backoffs)
			}
			return
		default:
			mock.Add(time.Second)
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("retry did not finish on the mock clock")
}

func TestRetry_OnRetryCallback(t *testing.T) {
	var retries []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		retries = append(retries, attempt)
	}

	_ = RetryFunc(context.Background(), cfg, func(ctx context.Context) error { return errRetryable })

	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("expected attempts [1, 2], got %v", retries)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		BackoffFactor:  2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, cfg); got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}
