// Package retry provides exponential backoff retry logic for external calls.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/jamiewh/homedash/internal/dasherr"
)

// Config holds retry configuration. An operation is attempted MaxRetries+1
// times in total, with the delay doubling from BaseDelay after each failure.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig matches the TV control policy: up to 3 retries with
// 1s → 2s → 4s delays.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   4 * time.Second,
	}
}

// Do executes fn with exponential backoff. Only connection-class failures
// are retried; protocol-level rejections (denied pairing, bad payloads)
// return immediately.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !dasherr.IsConnectionFailure(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
