package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retries with capped exponential backoff and full
// jitter. Zero fields take the values in DefaultRetryConfig.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Label names the operation in retry logs.
	Label string

	// ShouldRetry overrides IsTransient.
	ShouldRetry func(err error) bool

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig tries three times starting at 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// SourceRetryConfig is the policy for re-running a whole source load.
// maxRetries counts retries after the first attempt; zero disables them.
func SourceRetryConfig(maxRetries int, source string) RetryConfig {
	return RetryConfig{
		MaxAttempts:    max(maxRetries, 0) + 1,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Label:          source + " load",
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// its attempts, or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt >= cfg.MaxAttempts || ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return zero, err
		}

		delay := cfg.backoff(attempt)
		if ra := retryAfter(err); ra > delay {
			delay = min(ra, cfg.MaxBackoff)
		}
		zap.L().Warn("resilience: retrying",
			zap.String("operation", cfg.Label),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if cfg.sleep(ctx, delay) != nil {
			return zero, err
		}
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	return c
}

// backoff returns a uniform delay in [0, min(max, initial*2^(attempt-1))].
func (c RetryConfig) backoff(attempt int) time.Duration {
	ceiling := c.MaxBackoff
	if shift := attempt - 1; shift < 32 {
		if d := c.InitialBackoff << shift; d > 0 && d < ceiling {
			ceiling = d
		}
	}
	return rand.N(ceiling + 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
