package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterSlots(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 2, PollInterval: time.Millisecond})
	ctx := context.Background()

	r1, err := l.Acquire(ctx, 0)
	require.NoError(t, err)
	r2, err := l.Acquire(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Active())

	blocked, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(blocked, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), l.Stats().ConcurrencyHits)

	r1()
	r1() // idempotent
	assert.Equal(t, 1, l.Active())
	r2()
	assert.Equal(t, 0, l.Active())
}

func TestLimiterWakesWaiterOnRelease(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1, PollInterval: time.Hour})
	release, err := l.Acquire(context.Background(), 0)
	require.NoError(t, err)

	got := make(chan struct{})
	go func() {
		r, err := l.Acquire(context.Background(), 0)
		if err == nil {
			r()
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	release()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestLimiterTokenBucket(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 5, TokensPerMinute: 100, PollInterval: time.Millisecond})

	r, err := l.Acquire(context.Background(), 80)
	require.NoError(t, err)
	r()
	assert.Equal(t, 20, l.Stats().AvailableTokens)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, 50)
	assert.Error(t, err)
	assert.Equal(t, int64(1), l.Stats().TokenLimitHits)

	l.refill()
	l.refill()
	l.refill()
	r, err = l.Acquire(context.Background(), 50)
	require.NoError(t, err)
	r()
	assert.Equal(t, 0, l.Stats().AvailableTokens)
}

func TestLimiterClampsOversizedRequest(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1, TokensPerMinute: 10})
	r, err := l.Acquire(context.Background(), 10_000)
	require.NoError(t, err)
	r()
	assert.Equal(t, 0, l.Stats().AvailableTokens)
}

func TestLimiterStartStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	NewLimiter(LimiterConfig{MaxConcurrent: 1, TokensPerMinute: 60}).Start(ctx)
	NewLimiter(LimiterConfig{MaxConcurrent: 1}).Start(ctx)
	cancel()
	// goleak in TestMain verifies the refill goroutine exits.
	time.Sleep(5 * time.Millisecond)
}
