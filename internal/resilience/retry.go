package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls fixed-delay retries.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the pause before every retry.
	Delay time.Duration

	// ShouldRetry decides whether an error earns another attempt. If nil,
	// only rate-limit errors are retried.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// RetryOnceOnRateLimit returns the registry retry policy: one more attempt
// after delay, and only for 429 responses.
func RetryOnceOnRateLimit(delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		Delay:       delay,
		ShouldRetry: IsRateLimited,
	}
}

// DoVal executes fn, retrying per cfg. Context cancellation stops retries
// and returns the last error.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRateLimited
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if err := Sleep(ctx, cfg.Delay); err != nil {
			break
		}
	}
	return zero, lastErr
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
