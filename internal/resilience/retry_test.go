package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medrag-cli/internal/config"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_SuccessFirstAttempt(t *testing.T) {
	var attempts []int
	got, err := DoVal(context.Background(), fastRetry(), func(_ context.Context, attempt int) (string, error) {
		attempts = append(attempts, attempt)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []int{1}, attempts)
}

func TestDoVal_RetriesAnyError(t *testing.T) {
	var attempts []int
	got, err := DoVal(context.Background(), fastRetry(), func(_ context.Context, attempt int) (int, error) {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return 0, errors.New("invalid json in response")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDoVal_Exhausts(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry()
	cfg.OnRetry = func(attempt int, _ error, delay time.Duration) {
		retried = append(retried, attempt)
		assert.LessOrEqual(t, delay, 5*time.Millisecond)
	}

	_, err := DoVal(context.Background(), cfg, func(_ context.Context, _ int) (int, error) {
		calls++
		return 0, errors.New("always")
	})
	require.Error(t, err)
	assert.Equal(t, "always", err.Error())
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ShouldRetryOverride(t *testing.T) {
	calls := 0
	cfg := fastRetry()
	cfg.ShouldRetry = IsTransient

	err := Do(context.Background(), cfg, func(_ context.Context, _ int) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(), func(_ context.Context, _ int) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	calls := 0
	err := Do(ctx, cfg, func(_ context.Context, _ int) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryUnlessCanceled(t *testing.T) {
	assert.True(t, RetryUnlessCanceled(errors.New("x")))
	assert.False(t, RetryUnlessCanceled(context.Canceled))
	assert.False(t, RetryUnlessCanceled(context.DeadlineExceeded))
}

func TestComputeBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, time.Second, computeBackoff(10, cfg))

	cfg.JitterFraction = 0.5
	for range 50 {
		d := computeBackoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(RetryConfig{JitterFraction: -1})
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, 20*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Zero(t, cfg.JitterFraction)
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.RetryConfig{MaxAttempts: 5, InitialBackoffMs: 250, MaxBackoffMs: 4000, Multiplier: 1.5, JitterFraction: 0})
	assert.Equal(t, 5, got.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, got.InitialBackoff)
	assert.Equal(t, 4*time.Second, got.MaxBackoff)
	assert.Equal(t, 1.5, got.Multiplier)
	assert.Zero(t, got.JitterFraction)

	def := FromConfig(config.RetryConfig{JitterFraction: -1})
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
	assert.Equal(t, 0.25, def.JitterFraction)
}
