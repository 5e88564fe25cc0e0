package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/outboxbridge"
	"github.com/loopers/commerce-core/internal/store"
)

// CreateOrder implements spec §4.1's algorithm: a single DB transaction
// with row locks acquired in ascending productId order, retried up to
// twice with jitter on errors of KindConflictRetryable. The postgres
// repositories do not classify lock-wait timeouts as that kind, so those
// are returned without a retry; a lost coupon race is ErrCouponRaceLost,
// which is terminal and also not retried.
func (o *Orchestrator) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderInfo, error) {
	var info *OrderInfo
	err := apperr.RetryWithJitter(3, 50*time.Millisecond, func(attempt int) error {
		result, err := o.createOrderOnce(ctx, req)
		if err != nil {
			return err
		}
		info = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	// After-commit: drive payment asynchronously; never blocks the caller
	// beyond the transaction that already committed.
	go o.requestPaymentAsync(context.Background(), info.OrderID, info.TotalAmount, req)

	return info, nil
}

func (o *Orchestrator) createOrderOnce(ctx context.Context, req CreateOrderRequest) (*OrderInfo, error) {
	var info *OrderInfo
	collector := o.bus.NewCollector()

	err := withTx(ctx, o.db, func(tx store.TxController) error {
		user, err := o.users.LockForUpdate(ctx, tx, req.ExternalUserID)
		if err != nil {
			return err
		}

		items := make([]ItemRequest, len(req.Items))
		copy(items, req.Items)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		var orderItems []domain.OrderItem
		var subtotal int64
		for _, it := range items {
			p, err := o.products.LockForUpdate(ctx, tx, it.ProductID)
			if err != nil {
				return err
			}
			if err := p.ReserveStock(it.Quantity); err != nil {
				return err
			}
			if err := o.products.Save(ctx, tx, p); err != nil {
				return err
			}
			orderItems = append(orderItems, domain.OrderItem{
				ProductID:     p.ID,
				NameSnapshot:  p.Name,
				PriceSnapshot: p.Price,
				Quantity:      it.Quantity,
			})
			subtotal += p.Price * it.Quantity
		}

		var discount int64
		if req.CouponCode != nil {
			coupon, err := o.coupons.FindCouponByCode(ctx, tx, *req.CouponCode)
			if err != nil {
				return err
			}
			uc, err := o.coupons.FindUserCoupon(ctx, tx, user.ID, coupon.ID)
			if err != nil {
				return err
			}
			previousVersion := uc.Version
			if err := uc.MarkUsed(); err != nil {
				return err
			}
			discount = coupon.Discount(subtotal)
			if err := o.coupons.SaveUserCoupon(ctx, tx, uc, previousVersion); err != nil {
				return err
			}
		}

		total := subtotal - discount - req.UsedPoints
		if total < 0 {
			return apperr.ErrInvalidAmount
		}

		if err := user.DebitPoints(req.UsedPoints); err != nil {
			return err
		}
		if err := o.users.Save(ctx, tx, user); err != nil {
			return err
		}

		order := &domain.Order{
			UserID:         user.ID,
			Items:          orderItems,
			Subtotal:       subtotal,
			DiscountAmount: discount,
			UsedPoints:     req.UsedPoints,
			TotalAmount:    total,
			CouponCode:     req.CouponCode,
			Status:         domain.OrderPending,
		}
		orderID, err := o.orders.Save(ctx, tx, order)
		if err != nil {
			return err
		}

		payment := &domain.Payment{
			OrderID:  orderID,
			UserID:   user.ID,
			Amount:   total,
			CardType: req.CardType,
			Status:   domain.PaymentPending,
		}
		if _, err := o.payments.Save(ctx, tx, payment); err != nil {
			return err
		}

		payload := domain.OrderCreatedPayload{
			OrderID:         orderID,
			UserID:          user.ID,
			CouponCode:      req.CouponCode,
			Subtotal:        subtotal,
			UsedPointAmount: req.UsedPoints,
			OccurredAt:      time.Now().UTC(),
		}
		for _, it := range orderItems {
			payload.Items = append(payload.Items, domain.OrderCreatedItem{
				ProductID:     it.ProductID,
				Quantity:      it.Quantity,
				PriceSnapshot: it.PriceSnapshot,
			})
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal order created payload: %w", err)
		}
		outboxbridge.Raise(collector, outboxbridge.Draft{
			Tx:            tx,
			EventType:     domain.EventTypeOrderCreated,
			AggregateID:   orderID,
			AggregateType: domain.AggregateTypeOrder,
			Topic:         domain.TopicOrderEvents,
			PartitionKey:  fmt.Sprintf("%d", orderID),
			Payload:       body,
		})

		if err := collector.DrainBeforeCommit(ctx); err != nil {
			return err
		}

		info = &OrderInfo{
			OrderID:        orderID,
			Status:         order.Status,
			Subtotal:       subtotal,
			DiscountAmount: discount,
			UsedPoints:     req.UsedPoints,
			TotalAmount:    total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	collector.DrainAfterCommit(ctx)
	return info, nil
}
