package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/store"
)

type CouponRepository struct{}

func NewCouponRepository() *CouponRepository { return &CouponRepository{} }

func (r *CouponRepository) FindCouponByCode(ctx context.Context, tx store.Tx, code string) (*domain.Coupon, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, code, type, discount_value FROM coupons WHERE code = $1`, code)

	var c domain.Coupon
	if err := row.Scan(&c.ID, &c.Code, &c.Type, &c.DiscountValue); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrCouponNotFound
		}
		return nil, fmt.Errorf("find coupon by code: %w", err)
	}
	return &c, nil
}

// FindUserCoupon does not lock the row: UserCoupon uses optimistic
// concurrency, so the caller reads a snapshot and races on the write
// (spec §4.1 step 3).
func (r *CouponRepository) FindUserCoupon(ctx context.Context, tx store.Tx, userID, couponID int64) (*domain.UserCoupon, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, user_id, coupon_id, is_used, version
		FROM user_coupons
		WHERE user_id = $1 AND coupon_id = $2`, userID, couponID)

	var uc domain.UserCoupon
	if err := row.Scan(&uc.ID, &uc.UserID, &uc.CouponID, &uc.IsUsed, &uc.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrCouponNotFound
		}
		return nil, fmt.Errorf("find user coupon: %w", err)
	}
	return &uc, nil
}

// SaveUserCoupon performs the optimistic compare-and-swap; a zero-rows
// update means someone else won the race, surfaced as ErrCouponRaceLost.
func (r *CouponRepository) SaveUserCoupon(ctx context.Context, tx store.Tx, uc *domain.UserCoupon, previousVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE user_coupons
		SET is_used = $1, version = version + 1
		WHERE id = $2 AND version = $3`, uc.IsUsed, uc.ID, previousVersion)
	if err != nil {
		return fmt.Errorf("save user coupon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save user coupon rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrCouponRaceLost
	}
	uc.Version = previousVersion + 1
	return nil
}
