package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// Recorder is implemented by limiters that adapt their delays to scrape
// outcomes.
type Recorder interface {
	RecordSuccess()
	RecordError()
}

// RecordSuccess notifies l of a clean scrape if it adapts to outcomes.
func RecordSuccess(l RateLimiter) {
	if r, ok := l.(Recorder); ok {
		r.RecordSuccess()
	}
}

// RecordError notifies l of a failed or challenged scrape if it adapts to
// outcomes.
func RecordError(l RateLimiter) {
	if r, ok := l.(Recorder); ok {
		r.RecordError()
	}
}

// MultiLimiter chains limiters. Wait passes only once every member admits
// the call, so a jittered per-call delay and a calls-per-window cap can
// apply together.
type MultiLimiter struct {
	limiters []RateLimiter
}

func NewMultiLimiter(limiters ...RateLimiter) *MultiLimiter {
	return &MultiLimiter{limiters: limiters}
}

func (m *MultiLimiter) Wait(ctx context.Context) error {
	for _, l := range m.limiters {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiLimiter) SetDelay(min, max time.Duration) {
	for _, l := range m.limiters {
		l.SetDelay(min, max)
	}
}

func (m *MultiLimiter) RecordSuccess() {
	for _, l := range m.limiters {
		RecordSuccess(l)
	}
}

func (m *MultiLimiter) RecordError() {
	for _, l := range m.limiters {
		RecordError(l)
	}
}

type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.calculateDelay()

	if elapsed < delay {
		waitTime := delay - elapsed

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.minDelay == r.maxDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	jitter := time.Duration(rand.Int63n(int64(delta)))
	return r.minDelay + jitter
}

// SlidingWindowLimiter allows at most maxCalls within a rolling window.
// Once the window is full, Wait blocks until the oldest call expires out
// of it.
type SlidingWindowLimiter struct {
	maxCalls int
	window   time.Duration
	calls    []time.Time
	mu       sync.Mutex
}

func NewSlidingWindowLimiter(maxCalls int, window time.Duration) *SlidingWindowLimiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowLimiter{
		maxCalls: maxCalls,
		window:   window,
	}
}

func (s *SlidingWindowLimiter) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		now := time.Now()
		s.evict(now)

		if len(s.calls) < s.maxCalls {
			s.calls = append(s.calls, now)
			s.mu.Unlock()
			return nil
		}

		// Wake once the oldest call leaves the window, then recheck.
		waitTime := s.window - now.Sub(s.calls[0])
		s.mu.Unlock()

		if waitTime < time.Millisecond {
			waitTime = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// SetDelay reinterprets the window; min is ignored since the limiter has
// no per-call delay.
func (s *SlidingWindowLimiter) SetDelay(min, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max > 0 {
		s.window = max
	}
}

// Remaining reports how many calls are still available in the current
// window.
func (s *SlidingWindowLimiter) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(time.Now())
	return s.maxCalls - len(s.calls)
}

func (s *SlidingWindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.calls) && !s.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.calls = append(s.calls[:0], s.calls[i:]...)
	}
}

type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		maxErrorCount:     3,
		backoffFactor:     1.5,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < 1*time.Second {
			newMin = 1 * time.Second
		}
		a.minDelay = newMin
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > 60*time.Second {
			newMin = 60 * time.Second
		}
		if newMax > 120*time.Second {
			newMax = 120 * time.Second
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}
