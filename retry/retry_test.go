package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(0, 3) {
		t.Error("ShouldRetry(0, 3) = false, want true")
	}
	if !ShouldRetry(2, 3) {
		t.Error("ShouldRetry(2, 3) = false, want true")
	}
	if ShouldRetry(3, 3) {
		t.Error("ShouldRetry(3, 3) = true, want false")
	}
}

func TestDelay_Bounds(t *testing.T) {
	base := 30 * time.Second
	tests := []struct {
		retryCount int
		min, max   time.Duration
	}{
		{0, 24 * time.Second, 36 * time.Second},
		{3, 192 * time.Second, 288 * time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 100; i++ {
			d := Delay(tt.retryCount, base)
			if d < tt.min || d > tt.max {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v]", tt.retryCount, d, tt.min, tt.max)
			}
			if d%time.Second != 0 {
				t.Fatalf("Delay(%d) = %v, want whole seconds", tt.retryCount, d)
			}
		}
	}
}

func TestDelay_Clamp(t *testing.T) {
	for i := 0; i < 20; i++ {
		if d := Delay(10, 30*time.Second); d != 600*time.Second {
			t.Fatalf("Delay(10) = %v, want 600s (clamped)", d)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"connection reset by peer", true},
		{"read timeout", true},
		{"Rate Limit exceeded", true},
		{"HTTP 503 service unavailable", true},
		{"HTTP 429", true},
		{"quota exceeded for quota metric", true},
		{"video not found", false},
		{"HTTP 401 Unauthorized", false},
		{"invalid request payload", false},
		{"permission denied on resource", false},
		{"something nobody has seen before", true}, // default retryable
		// Matching both lists: the retryable scan runs first and wins.
		{"timeout while checking unauthorized session", true},
	}

	for _, tt := range tests {
		if got := IsRetryableError(tt.message); got != tt.want {
			t.Errorf("IsRetryableError(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	cfg := Config{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_PermanentError(t *testing.T) {
	attempts := 0
	permanent := errors.New("video not found")
	cfg := Config{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("Do() returned error = %v, want %v", err, permanent)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	cfg := Config{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("Do() made %d attempts, want 3", attempts)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	attempts := 0
	cfg := Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		return errors.New("network is unreachable")
	})

	if err == nil {
		t.Fatal("Do() returned nil, want error")
	}
	if attempts != 3 {
		t.Errorf("Do() made %d attempts, want 3 (initial + 2 retries)", attempts)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Second}

	err := Do(ctx, cfg, nil, func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() returned error = %v, want context.Canceled", err)
	}
}
