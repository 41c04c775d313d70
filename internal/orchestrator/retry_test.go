package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiscout/arbiscout/internal/scraper"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Factor:      2.0,
	}
}

func TestRetryConfigDelay(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay: 2 * time.Second,
		MaxDelay:  60 * time.Second,
		Factor:    2.0,
	}

	for attempt := 0; attempt < 6; attempt++ {
		delay := cfg.Delay(attempt)

		expected := float64(cfg.BaseDelay) * pow(cfg.Factor, attempt)
		if expected > float64(cfg.MaxDelay) {
			expected = float64(cfg.MaxDelay)
		}
		// Jitter stretches the backoff by 10 to 30 percent.
		assert.GreaterOrEqual(t, float64(delay), expected*1.1)
		assert.LessOrEqual(t, float64(delay), expected*1.3)
	}
}

func pow(factor float64, attempt int) float64 {
	out := 1.0
	for i := 0; i < attempt; i++ {
		out *= factor
	}
	return out
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := retry(context.Background(), fastRetryConfig(3), slog.Default(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoversFromTransientFailures(t *testing.T) {
	calls := 0
	got, err := retry(context.Background(), fastRetryConfig(3), slog.Default(), "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := retry(context.Background(), fastRetryConfig(3), slog.Default(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetry_BotDetectionIsTerminal(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), fastRetryConfig(5), slog.Default(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, scraper.ErrBotDetected
	})

	assert.ErrorIs(t, err, scraper.ErrBotDetected)
	assert.Equal(t, 1, calls, "bot detection must not be retried")
}

func TestRetry_RateLimitIsTerminal(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), fastRetryConfig(5), slog.Default(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, scraper.ErrRateLimited
	})

	assert.ErrorIs(t, err, scraper.ErrRateLimited)
	assert.Equal(t, 1, calls, "rate limiting must not be retried")
}

func TestRetry_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := retry(ctx, fastRetryConfig(5), slog.Default(), "op", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
