package gateway

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/loopers/commerce-core/internal/config"
)

var (
	ErrCircuitOpen      = errors.New("gateway: circuit open")
	ErrBulkheadFull     = errors.New("gateway: bulkhead full")
	ErrRetriesExhausted = errors.New("gateway: retries exhausted")
	ErrTimeout          = errors.New("gateway: request timed out")
)

// Middleware composes, outer to inner, CircuitBreaker -> Bulkhead ->
// Retry(with a per-attempt Timeout), matching spec §4.4's resilience
// composition (the per-request timeout is applied at the innermost,
// per-attempt layer, per the spec's own "Timeout(per-request 5s)"
// phrasing — see DESIGN.md).
type Middleware struct {
	timeout time.Duration
	breaker *circuitBreaker
	sem     *semaphore.Weighted

	retryAttempts   int
	retryBase       time.Duration
	retryMultiplier float64
	retryCap        time.Duration
}

func NewMiddleware(cfg config.PaymentConfig) *Middleware {
	return &Middleware{
		timeout: cfg.Timeout,
		breaker: newCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitWindow, cfg.CircuitOpenFor),
		sem:     semaphore.NewWeighted(cfg.Bulkhead),

		retryAttempts:   3,
		retryBase:       500 * time.Millisecond,
		retryMultiplier: 2,
		retryCap:        5 * time.Second,
	}
}

// NoRetry runs fn exactly once through CircuitBreaker -> Bulkhead -> Timeout
// (the user-facing payment request path; spec §4.4 requestPayment: no
// retry, fail fast).
func (m *Middleware) NoRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.breaker.Allow() {
		return ErrCircuitOpen
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return ErrBulkheadFull
	}
	defer m.sem.Release(1)

	err := m.callWithTimeout(ctx, fn)
	m.breaker.Record(err == nil)
	return err
}

// WithRetry runs fn under the scheduler-path retry policy: exponential
// backoff with jitter, 3 attempts, base 500ms, multiplier 2, cap 5s, retry
// only on transient errors, never on 4xx (spec §4.4).
func (m *Middleware) WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.breaker.Allow() {
		return ErrCircuitOpen
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return ErrBulkheadFull
	}
	defer m.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt < m.retryAttempts; attempt++ {
		lastErr = m.callWithTimeout(ctx, fn)
		if lastErr == nil {
			m.breaker.Record(true)
			return nil
		}
		if !isRetryable(lastErr) {
			m.breaker.Record(false)
			return lastErr
		}
		if attempt == m.retryAttempts-1 {
			break
		}
		sleep := m.backoff(attempt)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			m.breaker.Record(false)
			return ctx.Err()
		}
	}
	m.breaker.Record(false)
	return errors.Join(ErrRetriesExhausted, lastErr)
}

func (m *Middleware) backoff(attempt int) time.Duration {
	d := time.Duration(float64(m.retryBase) * pow(m.retryMultiplier, attempt))
	if d > m.retryCap {
		d = m.retryCap
	}
	return d + time.Duration(rand.Int63n(int64(m.retryBase)))
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func (m *Middleware) callWithTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := fn(reqCtx)
	if err != nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// circuitBreaker is a process-wide, per-remote-target state machine: a
// sliding window of the last `window` call outcomes; trips open when the
// failure rate crosses threshold, resets to half-open after openFor.
type circuitBreaker struct {
	mu        sync.Mutex
	threshold float64
	window    int
	openFor   time.Duration

	outcomes   []bool // true = success
	state      breakerState
	openedAt   time.Time
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func newCircuitBreaker(threshold float64, window int, openFor time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, window: window, openFor: openFor, state: stateClosed}
}

// Allow reports whether a call may proceed, transitioning OPEN -> HALF_OPEN
// once openFor has elapsed.
func (b *circuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if time.Since(b.openedAt) >= b.openFor {
			b.state = stateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// Record logs a call outcome and re-evaluates the trip condition.
func (b *circuitBreaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		if success {
			b.state = stateClosed
			b.outcomes = nil
		} else {
			b.state = stateOpen
			b.openedAt = time.Now()
			b.outcomes = nil
		}
		return
	}

	b.outcomes = append(b.outcomes, success)
	if len(b.outcomes) > b.window {
		b.outcomes = b.outcomes[len(b.outcomes)-b.window:]
	}
	if len(b.outcomes) < b.window {
		return
	}

	failures := 0
	for _, ok := range b.outcomes {
		if !ok {
			failures++
		}
	}
	if float64(failures)/float64(len(b.outcomes)) >= b.threshold {
		b.state = stateOpen
		b.openedAt = time.Now()
		b.outcomes = nil
	}
}
