// Package limiter throttles outbound fetches: per-type pacing, a shared
// per-pass call budget, and retry with exponential backoff for transient
// failures.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"news_syncer/internal/domain"
)

// ErrBudgetExhausted is returned once the shared per-pass call budget is
// spent. The orchestrator reports the affected source as skipped.
var ErrBudgetExhausted = errors.New("per-pass call budget exhausted")

// RetryPolicy controls retries of transient fetch errors.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         float64 // fraction of the delay added randomly, 0..1
}

// Backoff returns the delay before the given retry (attempt is 1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	if backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	if p.Jitter > 0 {
		backoff += time.Duration(rand.Float64() * p.Jitter * float64(backoff))
	}
	return backoff
}

// TypePolicy is the pacing budget for one source type. RSS and Facebook hit
// different external APIs, so each type gets its own limiter.
type TypePolicy struct {
	MinInterval time.Duration
	Burst       int
}

type Config struct {
	MaxCallsPerPass int
	Types           map[domain.SourceType]TypePolicy
	Retry           RetryPolicy
}

// Limiter owns its counters; construct one per orchestrator rather than
// sharing globals so independent passes stay isolated.
type Limiter struct {
	pacers map[domain.SourceType]*rate.Limiter
	retry  RetryPolicy
	logger *slog.Logger

	mu        sync.Mutex
	remaining int
	budget    int
}

func New(cfg Config, logger *slog.Logger) *Limiter {
	pacers := make(map[domain.SourceType]*rate.Limiter, len(cfg.Types))
	for t, p := range cfg.Types {
		burst := p.Burst
		if burst < 1 {
			burst = 1
		}
		if p.MinInterval <= 0 {
			pacers[t] = rate.NewLimiter(rate.Inf, burst)
		} else {
			pacers[t] = rate.NewLimiter(rate.Every(p.MinInterval), burst)
		}
	}
	return &Limiter{
		pacers:    pacers,
		retry:     cfg.Retry,
		logger:    logger.With("component", "limiter"),
		remaining: cfg.MaxCallsPerPass,
		budget:    cfg.MaxCallsPerPass,
	}
}

// Reset re-arms the shared call budget for a new pass.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remaining = l.budget
}

// take consumes one call from the shared budget. A zero budget means
// unlimited.
func (l *Limiter) take() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.budget <= 0 {
		return true
	}
	if l.remaining <= 0 {
		return false
	}
	l.remaining--
	return true
}

// Do runs op under pacing, budget accounting and the retry policy. Every
// attempt, including retries, consumes one unit of the shared budget.
// Permanent errors and context cancellation propagate immediately.
func (l *Limiter) Do(ctx context.Context, t domain.SourceType, op func(context.Context) error) error {
	maxAttempts := l.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !l.take() {
			if err != nil {
				return fmt.Errorf("%w (after: %v)", ErrBudgetExhausted, err)
			}
			return ErrBudgetExhausted
		}

		if pacer, ok := l.pacers[t]; ok {
			if werr := pacer.Wait(ctx); werr != nil {
				return werr
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		backoff := l.retry.Backoff(attempt)
		l.logger.Warn("transient fetch error, retrying",
			"source_type", t,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", maxAttempts, err)
}
