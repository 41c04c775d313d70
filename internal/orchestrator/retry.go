package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/arbiscout/arbiscout/internal/scraper"
)

// RetryConfig controls the exponential backoff between scrape attempts.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Factor:      2.0,
	}
}

// Delay computes the backoff before retrying after the given zero-based
// attempt, capped at MaxDelay and stretched by 10-30% random jitter.
func (c RetryConfig) Delay(attempt int) time.Duration {
	backoff := float64(c.BaseDelay) * math.Pow(c.Factor, float64(attempt))
	if capped := float64(c.MaxDelay); backoff > capped {
		backoff = capped
	}
	jitter := 0.1 + rand.Float64()*0.2
	return time.Duration(backoff * (1 + jitter))
}

// retry runs fn up to MaxAttempts times. Bot detection and rate limiting
// are terminal: the marketplace has flagged the session and hammering it
// again only digs the hole deeper.
func retry[T any](ctx context.Context, cfg RetryConfig, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.Delay(attempt - 1)
			logger.Info("retrying", "operation", op, "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, scraper.ErrBotDetected) || errors.Is(err, scraper.ErrRateLimited) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}

		lastErr = err
		logger.Warn("attempt failed", "operation", op, "attempt", attempt+1, "error", err)
	}
	return zero, lastErr
}
