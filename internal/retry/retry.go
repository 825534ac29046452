// Package retry provides exponential backoff retry logic and the
// structured rate-limit errors the backoff policy inspects.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// JitterFraction is the fraction of backoff used for jitter (0.0-1.0).
	JitterFraction float64
}

// DefaultConfig is the policy used for classifier calls and record-store
// writes: three attempts, exponential backoff between 2s and 60s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// ErrorClassifier determines if an error is retryable.
type ErrorClassifier func(error) bool

// IsRetryable is the default classifier: context errors are permanent,
// everything else is worth another attempt.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Do executes fn under the retry policy, using the classifier to decide
// whether a failure is worth another attempt. The last error is wrapped so
// callers can still inspect it with errors.As.
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) error) error {
	if classifier == nil {
		classifier = IsRetryable
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			if !classifier(err) {
				return err
			}
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := backoff + jitter(backoff, cfg.JitterFraction)
		if sleep > cfg.MaxBackoff {
			sleep = cfg.MaxBackoff
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// jitter returns a random duration in range [-fraction*d, +fraction*d].
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return 0
	}
	jitterRange := float64(d) * fraction
	return time.Duration((rand.Float64() - 0.5) * 2 * jitterRange)
}

// RateLimitError indicates the upstream service rate limited the request.
type RateLimitError struct {
	// StatusCode is the HTTP status code (usually 429).
	StatusCode int
	// RetryAfter is the wait the server asked for, when it said.
	RetryAfter time.Duration
	// Message is the upstream error text, which may embed a wait hint.
	Message string
}

// Error returns a string representation of the rate limit error.
func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d): retry after %v", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// DefaultRateLimitWait applies when a rate-limit error carries no usable
// hint at all.
const DefaultRateLimitWait = 120 * time.Second

var waitHintPattern = regexp.MustCompile(`(?i)please try again in (\d+(?:\.\d+)?)\s*(s|m)`)

// ParseWaitHint extracts a wait duration embedded in upstream error text,
// e.g. "Please try again in 7.66s" or "Please try again in 2m".
func ParseWaitHint(msg string) (time.Duration, bool) {
	m := waitHintPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := time.Second
	if m[2] == "m" || m[2] == "M" {
		unit = time.Minute
	}
	return time.Duration(n * float64(unit)), true
}

// WaitHint reports how long to suspend before one final attempt. Structured
// RetryAfter wins, then a hint parsed from the message, then the default
// wait for rate-limit errors that say nothing. Non-rate-limit errors
// produce no hint.
func WaitHint(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		if rle.RetryAfter > 0 {
			return rle.RetryAfter, true
		}
		if d, ok := ParseWaitHint(rle.Message); ok {
			return d, true
		}
		return DefaultRateLimitWait, true
	}
	if d, ok := ParseWaitHint(err.Error()); ok {
		return d, true
	}
	return 0, false
}
