// Package retry provides a shared exponential-backoff-with-jitter helper
// for GitHub API calls that can fail transiently.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/google/go-github/v68/github"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	JitterFrac  float64 // e.g. 0.2 for +/-20%
}

// DefaultConfig matches spec.md §9: 3 attempts, 1s -> 4s -> 16s, +/-20% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		JitterFrac:  0.2,
	}
}

// Do runs fn, retrying on transient errors per cfg's schedule. It stops
// immediately on a permanent error or once ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		wait := jitter(delay, cfg.JitterFrac)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 4
	}
	return lastErr
}

// jitter multiplies d by a random factor in [1-frac, 1+frac].
func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	factor := 1 - frac + rand.Float64()*2*frac
	return time.Duration(float64(d) * factor)
}

// IsTransient reports whether err is worth retrying: GitHub 5xx/429/timeout
// responses and network-level errors. Other 4xx responses are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		if ghErr.Response == nil {
			return true
		}
		status := ghErr.Response.StatusCode
		return status == 429 || status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return errors.Is(err, context.DeadlineExceeded)
}
