// Package apperr classifies errors into the dispositions the rest of the
// system branches on, instead of callers doing string matching on error
// messages.
package apperr

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Kind is the disposition of an error as seen by a caller deciding whether
// to retry, surface to the user, or treat as a bug.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflictRetryable
	KindConflictTerminal
	KindGatewayTransient
	KindGatewayPermanent
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflictRetryable:
		return "conflict_retryable"
	case KindConflictTerminal:
		return "conflict_terminal"
	case KindGatewayTransient:
		return "gateway_transient"
	case KindGatewayPermanent:
		return "gateway_permanent"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and a stable Code used for
// logging and, where applicable, surfaced to callers across the package
// boundary.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: cause}
}

// Of returns the *Error in err's chain (found with errors.As), if any, so
// callers can branch on its Kind or Code.
func Of(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if ae, ok := Of(err); ok {
		return ae.Kind
	}
	return KindUnknown
}

// Sentinel errors built with New for the common cases; none carries a
// cause, and callers match them with errors.Is or by Kind.
var (
	ErrUserNotFound     = New(KindNotFound, "USER_NOT_FOUND", "user not found", nil)
	ErrProductNotFound  = New(KindNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	ErrCouponNotFound   = New(KindNotFound, "COUPON_NOT_FOUND", "coupon not found", nil)
	ErrOrderNotFound    = New(KindNotFound, "ORDER_NOT_FOUND", "order not found", nil)
	ErrInsufficientStock = New(KindConflictTerminal, "INSUFFICIENT_STOCK", "insufficient stock", nil)
	ErrInsufficientPoints = New(KindConflictTerminal, "INSUFFICIENT_POINTS", "insufficient points", nil)
	ErrInvalidAmount    = New(KindValidation, "INVALID_AMOUNT", "total amount is negative", nil)
	ErrCouponAlreadyUsed = New(KindConflictTerminal, "COUPON_ALREADY_USED", "coupon already used", nil)
	// KindConflictTerminal, not retryable: a lost coupon race means the
	// coupon is now used by the winner, so retrying can never succeed.
	ErrCouponRaceLost   = New(KindConflictTerminal, "COUPON_RACE_LOST", "lost optimistic concurrency race on coupon", nil)
	ErrRetryableConflict = New(KindConflictRetryable, "RETRYABLE_CONFLICT", "lock wait or version conflict", nil)
	ErrGatewayUnavailable = New(KindGatewayTransient, "GATEWAY_UNAVAILABLE", "payment gateway unavailable", nil)
)

// RetryWithJitter runs fn up to attempts times, sleeping a jittered backoff
// between attempts, stopping early on success or on a non-retryable error.
// It is used for the lock-timeout/optimistic-version conflict retries the
// orchestrator performs (spec: "retried at most 2 times with jitter").
func RetryWithJitter(attempts int, base time.Duration, fn func(attempt int) error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if KindOf(err) != KindConflictRetryable {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		sleep := base*time.Duration(1<<uint(attempt)) + time.Duration(rand.Int63n(int64(base)))
		time.Sleep(sleep)
	}
	return err
}
