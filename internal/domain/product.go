package domain

import "github.com/loopers/commerce-core/internal/apperr"

// Product is a mutable relational entity. Stock is mutated under a
// row-exclusive lock; LikeCount is a derived cache rebuilt periodically
// from the Like table and is never mutated by like-event handlers (spec
// §9: pick one writer).
type Product struct {
	ID        int64
	BrandID   int64
	Name      string
	Price     int64
	Stock     int64
	LikeCount int64
}

// ReserveStock validates and decrements stock in memory for a quantity.
func (p *Product) ReserveStock(quantity int64) error {
	if quantity <= 0 {
		return apperr.New(apperr.KindValidation, "INVALID_QUANTITY", "quantity must be positive", nil)
	}
	if p.Stock < quantity {
		return apperr.ErrInsufficientStock
	}
	p.Stock -= quantity
	return nil
}

// ReleaseStock reverses a prior reservation, used by compensation.
func (p *Product) ReleaseStock(quantity int64) {
	p.Stock += quantity
}
