package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Backoff decides how long to wait after the given failed attempt
// (1-based) before the next one.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same duration between every attempt. Fixed(0) retries
// immediately.
type Fixed time.Duration

func (f Fixed) Delay(int) time.Duration { return time.Duration(f) }

// Exponential grows the delay by Multiplier per attempt with symmetric
// jitter, capped at MaxDelay.
type Exponential struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (e Exponential) Delay(attempt int) time.Duration {
	mult := e.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	backoff := float64(e.InitialDelay) * math.Pow(mult, float64(attempt-1))
	jitter := backoff * e.JitterFraction * (2*rand.Float64() - 1)
	backoff += jitter
	if e.MaxDelay > 0 && backoff > float64(e.MaxDelay) {
		backoff = float64(e.MaxDelay)
	}
	if backoff < 0 {
		backoff = float64(e.InitialDelay)
	}
	return time.Duration(backoff)
}

type RetryConfig struct {
	MaxAttempts int
	Backoff     Backoff
	// OnRetry, if set, is called after each failed attempt that will be
	// retried.
	OnRetry func(attempt int, err error)
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff: Exponential{
			InitialDelay:   100 * time.Millisecond,
			MaxDelay:       10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
	}
}

// Retry calls fn until it succeeds, MaxAttempts is reached, or ctx is done.
// The returned error wraps the last failure.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	defaults := defaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = defaults.Backoff
	}
	logger := slog.Default().With("component", "retry", "operation", name)
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}
		delay := cfg.Backoff.Delay(attempt)
		logger.Warn("operation failed, retrying", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "error", lastErr, "next_delay", delay)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
	return fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, lastErr)
}
