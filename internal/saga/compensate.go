package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/outboxbridge"
	"github.com/loopers/commerce-core/internal/store"
)

// FailPayment runs the compensation transaction of spec §4.1: re-lock
// products and user, restore stock and points, cancel the order, emit
// OrderCanceled. UserCoupon is deliberately left used (best-effort only,
// per the unresolved open question in spec §9 — see DESIGN.md).
func (o *Orchestrator) FailPayment(ctx context.Context, orderID int64) error {
	return o.compensate(ctx, orderID, "payment_failed")
}

// CancelOrder is the user-initiated cancellation supplemented beyond the
// distilled spec (SPEC_FULL.md §D): identical compensation, but only while
// the order is still PENDING and payment has not reached a terminal state.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID int64) error {
	return o.compensate(ctx, orderID, "user_requested")
}

func (o *Orchestrator) compensate(ctx context.Context, orderID int64, reason string) error {
	collector := o.bus.NewCollector()
	err := withTx(ctx, o.db, func(tx store.TxController) error {
		order, err := o.orders.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return nil
		}
		payment, err := o.payments.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if reason == "user_requested" && payment.Status != domain.PaymentPending {
			return nil
		}

		if err := o.restoreUser(ctx, tx, order); err != nil {
			return err
		}

		items := append([]domain.OrderItem(nil), order.Items...)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
		for _, it := range items {
			p, err := o.products.LockForUpdate(ctx, tx, it.ProductID)
			if err != nil {
				return err
			}
			p.ReleaseStock(it.Quantity)
			if err := o.products.Save(ctx, tx, p); err != nil {
				return err
			}
		}

		if reason == "payment_failed" {
			if err := o.payments.UpdateStatus(ctx, tx, payment.ID, domain.PaymentFailed, nil); err != nil {
				return err
			}
		}
		if err := o.orders.UpdateStatus(ctx, tx, orderID, domain.OrderCanceled); err != nil {
			return err
		}

		payload := domain.OrderCanceledPayload{OrderID: orderID, Reason: reason, OccurredAt: time.Now().UTC()}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal order canceled payload: %w", err)
		}
		outboxbridge.Raise(collector, outboxbridge.Draft{
			Tx:            tx,
			EventType:     domain.EventTypeOrderCanceled,
			AggregateID:   orderID,
			AggregateType: domain.AggregateTypeOrder,
			Topic:         domain.TopicOrderEvents,
			PartitionKey:  fmt.Sprintf("%d", orderID),
			Payload:       body,
		})
		return collector.DrainBeforeCommit(ctx)
	})
	if err != nil {
		return err
	}
	collector.DrainAfterCommit(ctx)
	return nil
}

// restoreUser credits back UsedPoints to the order's owner; it locks the
// user row by internal id rather than external id since compensation
// starts from an already-persisted Order.
func (o *Orchestrator) restoreUser(ctx context.Context, tx store.Tx, order *domain.Order) error {
	user, err := o.users.LockForUpdateByID(ctx, tx, order.UserID)
	if err != nil {
		return fmt.Errorf("lock user for compensation: %w", err)
	}
	user.CreditPoints(order.UsedPoints)
	return o.users.Save(ctx, tx, user)
}
