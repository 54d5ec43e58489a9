package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instant records requested delays without sleeping.
func instant(cfg RetryConfig, delays *[]time.Duration) RetryConfig {
	cfg.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return cfg
}

func transient() error { return NewTransientError(errors.New("503"), 503) }

func TestDoVal_SucceedsAfterTransient(t *testing.T) {
	var delays []time.Duration
	calls := 0
	v, err := DoVal(context.Background(), instant(DefaultRetryConfig(), &delays), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transient()
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := Do(context.Background(), instant(DefaultRetryConfig(), &delays), func(context.Context) error {
		calls++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	calls := 0
	cfg := instant(RetryConfig{MaxAttempts: 4}, &delays)
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return transient()
	})

	assert.True(t, IsTransient(err))
	assert.Equal(t, 4, calls)
	assert.Len(t, delays, 3)
}

func TestDo_ShouldRetryOverride(t *testing.T) {
	var delays []time.Duration
	calls := 0
	cfg := instant(RetryConfig{MaxAttempts: 2, ShouldRetry: func(error) bool { return true }}, &delays)
	_ = Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.Equal(t, 2, calls)
}

func TestDo_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, DefaultRetryConfig(), func(context.Context) error {
		calls++
		cancel()
		return transient()
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	calls := 0
	start := time.Now()
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		return transient()
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoff_Capped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}.withDefaults()
	for attempt := 1; attempt <= 40; attempt++ {
		d := cfg.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
	for range 20 {
		assert.LessOrEqual(t, cfg.backoff(1), 100*time.Millisecond)
	}
}

func TestSourceRetryConfig(t *testing.T) {
	cfg := SourceRetryConfig(2, "sheet")
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, "sheet load", cfg.Label)

	assert.Equal(t, 1, SourceRetryConfig(-1, "upload").MaxAttempts)
}
