// Package saga implements the PurchasingOrchestrator: the saga coordinator
// that atomically debits points, reserves stock, creates an order, and
// asynchronously drives payment with recovery for timed-out transactions
// (spec §4.1).
package saga

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/eventbus"
	"github.com/loopers/commerce-core/internal/gateway"
	"github.com/loopers/commerce-core/internal/store"
)

type ItemRequest struct {
	ProductID int64
	Quantity  int64
}

type CreateOrderRequest struct {
	ExternalUserID string
	Items          []ItemRequest
	CouponCode     *string
	UsedPoints     int64
	CardType       string
	CardNo         string
	CallbackURL    string
}

type OrderInfo struct {
	OrderID        int64
	Status         domain.OrderStatus
	Subtotal       int64
	DiscountAmount int64
	UsedPoints     int64
	TotalAmount    int64
}

// Orchestrator wires every repository and collaborator the saga touches.
type Orchestrator struct {
	db       store.DB
	users    store.UserStore
	products store.ProductStore
	coupons  store.CouponStore
	orders   store.OrderStore
	payments store.PaymentStore
	outbox   store.OutboxStore
	bus      *eventbus.Bus
	gateway  *gateway.Client
	log      zerolog.Logger
}

func New(
	db store.DB,
	users store.UserStore,
	products store.ProductStore,
	coupons store.CouponStore,
	orders store.OrderStore,
	payments store.PaymentStore,
	outbox store.OutboxStore,
	bus *eventbus.Bus,
	gw *gateway.Client,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		db: db, users: users, products: products, coupons: coupons,
		orders: orders, payments: payments, outbox: outbox, bus: bus, gateway: gw, log: log,
	}
}

func withTx(ctx context.Context, db store.DB, fn func(tx store.TxController) error) error {
	return store.WithTx(ctx, db, fn)
}
