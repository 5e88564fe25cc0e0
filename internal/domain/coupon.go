package domain

import (
	"math"

	"github.com/loopers/commerce-core/internal/apperr"
)

// CouponType is a tagged variant selector; discount computation itself
// lives in Discount below rather than behind a factory (spec §9: Strategy
// pattern for discounts).
type CouponType string

const (
	CouponFixed      CouponType = "FIXED"
	CouponPercentage CouponType = "PERCENTAGE"
)

// Coupon is immutable reference data.
type Coupon struct {
	ID             int64
	Code           string
	Type           CouponType
	DiscountValue  int64 // cents/integer currency unit for FIXED, 0-100 for PERCENTAGE
}

func (c Coupon) Validate() error {
	if c.Type == CouponPercentage && (c.DiscountValue <= 0 || c.DiscountValue > 100) {
		return apperr.New(apperr.KindValidation, "INVALID_COUPON", "percentage discount must be in (0,100]", nil)
	}
	if c.Type == CouponFixed && c.DiscountValue <= 0 {
		return apperr.New(apperr.KindValidation, "INVALID_COUPON", "fixed discount must be positive", nil)
	}
	return nil
}

// Discount applies the coupon's discount rule to a subtotal.
func (c Coupon) Discount(subtotal int64) int64 {
	switch c.Type {
	case CouponFixed:
		if c.DiscountValue < subtotal {
			return c.DiscountValue
		}
		return subtotal
	case CouponPercentage:
		return int64(math.Round(float64(subtotal) * float64(c.DiscountValue) / 100.0))
	default:
		return 0
	}
}

// UserCoupon tracks per-user redemption state with optimistic concurrency;
// exactly one successful false->true transition is allowed per row.
type UserCoupon struct {
	ID       int64
	UserID   int64
	CouponID int64
	IsUsed   bool
	Version  int64
}

// MarkUsed validates and flips IsUsed in memory; the caller must persist
// with a WHERE version = <old version> clause and treat zero rows affected
// as ErrCouponRaceLost.
func (uc *UserCoupon) MarkUsed() error {
	if uc.IsUsed {
		return apperr.ErrCouponAlreadyUsed
	}
	uc.IsUsed = true
	return nil
}
