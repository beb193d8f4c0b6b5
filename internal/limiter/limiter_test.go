package limiter

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_syncer/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestLimiter(budget, attempts int) *Limiter {
	return New(Config{
		MaxCallsPerPass: budget,
		Types: map[domain.SourceType]TypePolicy{
			domain.SourceTypeRSS:      {MinInterval: 0},
			domain.SourceTypeFacebook: {MinInterval: 0},
		},
		Retry: RetryPolicy{
			MaxAttempts:    attempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     4 * time.Millisecond,
		},
	}, testLogger())
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	l := newTestLimiter(10, 3)
	calls := 0
	err := l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientUpToCap(t *testing.T) {
	l := newTestLimiter(10, 3)
	calls := 0
	err := l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error {
		calls++
		return domain.Transient("fetch", errors.New("timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "retried exactly max attempts, never indefinitely")
	assert.True(t, domain.IsTransient(err))
}

func TestDo_PermanentErrorNoRetry(t *testing.T) {
	l := newTestLimiter(10, 3)
	calls := 0
	err := l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error {
		calls++
		return domain.Permanent("fetch", errors.New("404"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, domain.IsPermanent(err))
}

func TestDo_TransientThenSuccess(t *testing.T) {
	l := newTestLimiter(10, 3)
	calls := 0
	err := l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return domain.Transient("fetch", errors.New("503"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_BudgetSharedAcrossGoroutines(t *testing.T) {
	const budget = 5
	l := newTestLimiter(budget, 1)

	var calls atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error {
				calls.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(budget), calls.Load(), "aggregate invocations never exceed the budget")
}

func TestDo_RetriesConsumeBudget(t *testing.T) {
	l := newTestLimiter(2, 5)
	calls := 0
	err := l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error {
		calls++
		return domain.Transient("fetch", errors.New("timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestDo_BudgetExhausted(t *testing.T) {
	l := newTestLimiter(1, 1)
	require.NoError(t, l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error { return nil }))

	err := l.Do(context.Background(), domain.SourceTypeFacebook, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestReset_RearmsBudget(t *testing.T) {
	l := newTestLimiter(1, 1)
	require.NoError(t, l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error { return nil }))
	require.ErrorIs(t, l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error { return nil }), ErrBudgetExhausted)

	l.Reset()
	assert.NoError(t, l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error { return nil }))
}

func TestDo_ZeroBudgetMeansUnlimited(t *testing.T) {
	l := newTestLimiter(0, 1)
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Do(context.Background(), domain.SourceTypeRSS, func(ctx context.Context) error { return nil }))
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	l := New(Config{
		MaxCallsPerPass: 10,
		Types:           map[domain.SourceType]TypePolicy{domain.SourceTypeRSS: {}},
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Minute,
			MaxBackoff:     time.Minute,
		},
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Do(ctx, domain.SourceTypeRSS, func(ctx context.Context) error {
			return domain.Transient("fetch", errors.New("timeout"))
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 4*time.Second, p.Backoff(10))
}

func TestBackoff_JitterBounded(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 8 * time.Second, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		d := p.Backoff(2)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}
