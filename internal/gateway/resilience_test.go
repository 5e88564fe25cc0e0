package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopers/commerce-core/internal/config"
)

func testMiddleware() *Middleware {
	return NewMiddleware(config.PaymentConfig{
		Timeout:          50 * time.Millisecond,
		Bulkhead:         2,
		CircuitThreshold: 0.5,
		CircuitWindow:    4,
		CircuitOpenFor:   20 * time.Millisecond,
	})
}

func TestMiddleware_NoRetry_NeverRetries(t *testing.T) {
	m := testMiddleware()
	calls := 0
	err := m.NoRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return newStatusError(500, true)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_WithRetry_RetriesTransientOnly(t *testing.T) {
	m := testMiddleware()
	calls := 0
	err := m.WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return newStatusError(503, true)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_WithRetry_NeverRetries4xx(t *testing.T) {
	m := testMiddleware()
	calls := 0
	err := m.WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return newStatusError(400, false)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCircuitBreaker_TripsAfterThresholdAndHalfOpens(t *testing.T) {
	b := newCircuitBreaker(0.5, 4, 10*time.Millisecond)
	assert.True(t, b.Allow())
	b.Record(false)
	b.Record(false)
	b.Record(true)
	b.Record(false) // 3/4 failures >= 0.5 threshold -> opens
	assert.False(t, b.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Allow()) // half-open
	b.Record(true)
	assert.True(t, b.Allow())
}

func TestMiddleware_BulkheadLimitsConcurrency(t *testing.T) {
	m := testMiddleware()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	go func() {
		_ = m.NoRetry(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	go func() {
		_ = m.NoRetry(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond) // let both acquire the 2 permits

	err := m.NoRetry(ctx, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBulkheadFull) || errors.Is(err, context.DeadlineExceeded))
	close(release)
}
