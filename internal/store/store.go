// Package store defines the thin repository interfaces the core depends
// on. Each aggregate gets only the operations the core needs — load-for-
// update, save, findById, a handful of filtered finders — never a generic
// ORM-style interface (spec §9).
package store

import (
	"context"
	"database/sql"

	"github.com/loopers/commerce-core/internal/domain"
)

// Tx is the narrow subset of *sql.Tx the repositories need; satisfied by
// *sql.Tx and useful for substituting a fake in unit tests that don't want
// a real database round trip.
type Tx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TxController is the commit/rollback half of a transaction, split out from
// Tx so repository code keeps depending only on the narrower Tx while the
// transaction runner depends on both.
type TxController interface {
	Tx
	Commit() error
	Rollback() error
}

// UserStore exposes only what the saga needs from User.
type UserStore interface {
	LockForUpdate(ctx context.Context, tx Tx, externalUserID string) (*domain.User, error)
	LockForUpdateByID(ctx context.Context, tx Tx, userID int64) (*domain.User, error)
	// FindByID is a plain, non-locking read used outside the purchasing
	// transaction (e.g. the recovery loop resolving an order's owner).
	FindByID(ctx context.Context, tx Tx, userID int64) (*domain.User, error)
	Save(ctx context.Context, tx Tx, u *domain.User) error
}

// ProductStore exposes only what the saga needs from Product.
type ProductStore interface {
	LockForUpdate(ctx context.Context, tx Tx, productID int64) (*domain.Product, error)
	Save(ctx context.Context, tx Tx, p *domain.Product) error
	FindByIDs(ctx context.Context, tx Tx, ids []int64) ([]*domain.Product, error)
	FindOrderedByLikeCount(ctx context.Context, offset, limit int) ([]*domain.Product, error)
}

// BrandStore is read-only; brands are immutable after creation.
type BrandStore interface {
	FindByIDs(ctx context.Context, tx Tx, ids []int64) ([]*domain.Brand, error)
}

// CouponStore loads coupon reference data and per-user redemption state.
type CouponStore interface {
	FindCouponByCode(ctx context.Context, tx Tx, code string) (*domain.Coupon, error)
	FindUserCoupon(ctx context.Context, tx Tx, userID, couponID int64) (*domain.UserCoupon, error)
	// SaveUserCoupon persists uc with an optimistic WHERE version=<old>
	// clause; returns apperr.ErrCouponRaceLost if zero rows were affected.
	SaveUserCoupon(ctx context.Context, tx Tx, uc *domain.UserCoupon, previousVersion int64) error
}

// OrderStore exposes order persistence and the finders the recovery loop
// and notification paths need.
type OrderStore interface {
	Save(ctx context.Context, tx Tx, o *domain.Order) (int64, error)
	UpdateStatus(ctx context.Context, tx Tx, orderID int64, status domain.OrderStatus) error
	FindByID(ctx context.Context, tx Tx, orderID int64) (*domain.Order, error)
	FindPending(ctx context.Context) ([]*domain.Order, error)
}

// PaymentStore exposes payment persistence.
type PaymentStore interface {
	Save(ctx context.Context, tx Tx, p *domain.Payment) (int64, error)
	UpdateStatus(ctx context.Context, tx Tx, paymentID int64, status domain.PaymentStatus, transactionKey *string) error
	FindByOrderID(ctx context.Context, tx Tx, orderID int64) (*domain.Payment, error)
}

// OutboxStore appends events co-transactionally and is polled by the relay.
type OutboxStore interface {
	// Append inserts ev; on a unique-constraint conflict on
	// (aggregateId, aggregateType, version) it returns nil (treated as
	// success — duplicate production from a saga retry).
	Append(ctx context.Context, tx Tx, ev *domain.OutboxEvent) error
	NextVersion(ctx context.Context, tx Tx, aggregateID int64, aggregateType string) (int64, error)
	ClaimPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, func(), error)
	MarkPublished(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, ids []int64) error
}

// IdempotencyStore is the consumer-side dedup primitive.
type IdempotencyStore interface {
	// MarkProcessed inserts eventID; returns (false, nil) if it already
	// existed (meaning: skip the side effect), (true, nil) if this call
	// claimed it.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

// DB is the subset of *sql.DB the transaction runner needs, abstracted so
// the saga's transaction boundary can be driven by a fake TxController in
// tests without a real database.
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (TxController, error)
}

// SQLDB adapts a real *sql.DB to the DB interface; *sql.Tx already
// satisfies TxController, so the adaptation is just a return-type cast at
// the call site.
type SQLDB struct {
	DB *sql.DB
}

func NewSQLDB(db *sql.DB) SQLDB { return SQLDB{DB: db} }

func (s SQLDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (TxController, error) {
	return s.DB.BeginTx(ctx, opts)
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func WithTx(ctx context.Context, db DB, fn func(tx TxController) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
