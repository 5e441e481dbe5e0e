// Package retry provides the upload retry policy: exponential backoff with
// jitter and substring-based classification of remote error messages.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int
	// BaseDelay is the backoff for the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// JitterFraction is the fraction of backoff used for jitter (0.0-1.0).
	JitterFraction float64
}

// DefaultConfig returns the upload defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseDelay:      30 * time.Second,
		MaxDelay:       600 * time.Second,
		JitterFraction: 0.2, // +/- 20% jitter
	}
}

// ShouldRetry reports whether another attempt is allowed.
func ShouldRetry(retryCount, maxRetries int) bool {
	return retryCount < maxRetries
}

// Delay computes the backoff before retry number retryCount (0-based):
// base * 2^retryCount, jittered by +/-20%, clamped to 600 seconds and
// truncated to whole seconds.
func Delay(retryCount int, base time.Duration) time.Duration {
	return backoff(retryCount, base, DefaultConfig()).Truncate(time.Second)
}

func backoff(retryCount int, base time.Duration, cfg Config) time.Duration {
	d := float64(base) * float64(uint64(1)<<uint(retryCount))

	jitter := d * cfg.JitterFraction
	d += (rand.Float64()*2 - 1) * jitter

	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	return time.Duration(d)
}

// retryablePatterns match transient conditions worth another attempt.
// Checked before nonRetryablePatterns; the first hit in either list wins.
var retryablePatterns = []string{
	"timeout",
	"connection",
	"network",
	"rate limit",
	"too many requests",
	"quota exceeded",
	"503",
	"504",
	"429",
	"temporarily unavailable",
}

// nonRetryablePatterns match permanent failures.
var nonRetryablePatterns = []string{
	"invalid",
	"not found",
	"unauthorized",
	"403",
	"404",
	"401",
	"permission denied",
}

// IsRetryableError classifies a remote error message by substring match,
// case-insensitively. Unmatched messages default to retryable: transient
// failures are far more common than novel permanent ones.
func IsRetryableError(message string) bool {
	msg := strings.ToLower(message)

	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	for _, p := range nonRetryablePatterns {
		if strings.Contains(msg, p) {
			return false
		}
	}
	return true
}

// ErrorClassifier determines if an error is retryable.
type ErrorClassifier func(error) bool

// MessageClassifier adapts IsRetryableError to the ErrorClassifier shape.
func MessageClassifier(err error) bool {
	if err == nil {
		return false
	}
	return IsRetryableError(err.Error())
}

// Do executes fn with backoff between attempts, using the classifier to
// decide whether an error is worth retrying. A nil classifier falls back to
// MessageClassifier. The backoff sleep respects ctx cancellation.
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) error) error {
	if classifier == nil {
		classifier = MessageClassifier
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			if !classifier(err) {
				return err
			}
		}

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff(attempt, cfg.BaseDelay, cfg)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
