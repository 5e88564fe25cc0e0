package domain

import "github.com/loopers/commerce-core/internal/apperr"

// User is a mutable relational entity; pointBalance is only ever mutated
// under an exclusive row lock held for the duration of a purchasing
// transaction.
type User struct {
	ID             int64
	ExternalUserID string
	Email          string
	PointBalance   int64
}

// DebitPoints validates and applies a point debit in memory; callers must
// hold the row lock before calling this and persist the result within the
// same transaction.
func (u *User) DebitPoints(amount int64) error {
	if amount < 0 {
		return apperr.ErrInvalidAmount
	}
	if amount > u.PointBalance {
		return apperr.ErrInsufficientPoints
	}
	u.PointBalance -= amount
	return nil
}

// CreditPoints reverses a prior debit, used by compensation.
func (u *User) CreditPoints(amount int64) {
	u.PointBalance += amount
}
