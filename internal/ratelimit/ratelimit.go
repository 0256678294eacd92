// Package ratelimit implements the fixed-window request/token budget that
// gates every oracle call of a single translation job.
//
// The window is reset as a whole rather than slid continuously, so bursts
// that straddle a window boundary can briefly exceed the nominal per-minute
// budget.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Window is the accounting period of the limiter.
const Window = 60 * time.Second

// minWait is the shortest pause taken when the budget is exhausted.
const minWait = time.Second

// Limits are the per-window ceilings.
type Limits struct {
	RequestsPerMinute int
	TokensPerMinute   int
}

// Validate rejects non-positive ceilings.
func (l Limits) Validate() error {
	if l.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests per minute must be positive, got %d", l.RequestsPerMinute)
	}
	if l.TokensPerMinute <= 0 {
		return fmt.Errorf("tokens per minute must be positive, got %d", l.TokensPerMinute)
	}
	return nil
}

// Usage is a snapshot of the current window plus lifetime counters.
type Usage struct {
	WindowStart time.Time
	Requests    int
	Tokens      int
	Total       int
	Waits       int
	Waited      time.Duration
}

// Limiter tracks one window of requests and estimated tokens. It belongs to
// exactly one job and is not safe for concurrent use.
type Limiter struct {
	limits Limits
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	windowStart time.Time
	requests    int
	tokens      int
	total       int
	waits       int
	waited      time.Duration
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleeper replaces the blocking wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithLogger sets the logger used for throttling notices.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a Limiter whose first window starts now.
func New(limits Limits, opts ...Option) *Limiter {
	l := &Limiter{
		limits: limits,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.windowStart = l.now()
	return l
}

// Admit blocks until a call costing estimatedTokens fits in the current
// window and then records it. It only returns an error when ctx is done
// while waiting.
//
// A request whose estimate alone exceeds the token ceiling is admitted once
// the window is empty; it could never fit otherwise.
func (l *Limiter) Admit(ctx context.Context, estimatedTokens int) error {
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}

	elapsed := l.now().Sub(l.windowStart)
	if elapsed >= Window {
		l.reset()
		elapsed = 0
	}

	for l.exhausted(estimatedTokens) {
		wait := Window - elapsed
		if wait < minWait {
			wait = minWait
		}
		l.logger.Info("rate limit hit, waiting",
			"requests", l.requests, "max_requests", l.limits.RequestsPerMinute,
			"tokens", l.tokens, "max_tokens", l.limits.TokensPerMinute,
			"wait", wait.Round(time.Second))

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		l.waits++
		l.waited += wait
		l.reset()
		elapsed = 0
	}

	l.requests++
	l.tokens += estimatedTokens
	l.total++
	return nil
}

func (l *Limiter) exhausted(estimatedTokens int) bool {
	if l.requests >= l.limits.RequestsPerMinute {
		return true
	}
	if l.tokens+estimatedTokens > l.limits.TokensPerMinute {
		return l.requests > 0 || l.tokens > 0
	}
	return false
}

func (l *Limiter) reset() {
	l.windowStart = l.now()
	l.requests = 0
	l.tokens = 0
}

// Usage returns the current window counters, the lifetime request total and
// how often and how long callers were held back.
func (l *Limiter) Usage() Usage {
	return Usage{
		WindowStart: l.windowStart,
		Requests:    l.requests,
		Tokens:      l.tokens,
		Total:       l.total,
		Waits:       l.waits,
		Waited:      l.waited,
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EstimateTokens approximates the token cost of one call: a quarter of the
// prompt length in characters plus the full output allowance, since the real
// output size is unknown before the call.
func EstimateTokens(promptChars, maxOutputTokens int) int {
	return promptChars/4 + maxOutputTokens
}
