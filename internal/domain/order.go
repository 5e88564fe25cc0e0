package domain

import "time"

// OrderStatus is one node of the Order state DAG: PENDING is the only
// non-terminal state; COMPLETED and CANCELED are terminal and no further
// transitions are permitted out of them.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCanceled  OrderStatus = "CANCELED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCanceled
}

// OrderItem is a value object owned by Order; Name/Price are snapshots
// taken at order time so later catalog changes never alter a past order.
type OrderItem struct {
	ProductID    int64
	NameSnapshot string
	PriceSnapshot int64
	Quantity     int64
}

func (i OrderItem) LineTotal() int64 {
	return i.PriceSnapshot * i.Quantity
}

// Order is the central aggregate of the purchasing saga.
type Order struct {
	ID              int64
	UserID          int64
	Items           []OrderItem
	Subtotal        int64
	DiscountAmount  int64
	UsedPoints      int64
	TotalAmount     int64
	CouponCode      *string
	Status          OrderStatus
	CreatedAt       time.Time
}

// Transition validates and applies a status transition per the DAG; callers
// persist on success. Idempotent consumers should check IsTerminal before
// ever calling this so replays of already-applied transitions are no-ops.
func (o *Order) Transition(to OrderStatus) bool {
	if o.Status.IsTerminal() {
		return false
	}
	if o.Status == OrderPending && (to == OrderCompleted || to == OrderCanceled) {
		o.Status = to
		return true
	}
	return false
}
