package saga

import (
	"context"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/store"
)

// CompletePayment transitions Order to COMPLETED on a terminal SUCCESS
// response. Idempotent: a terminal order is left untouched (spec §4.1
// "the event handler checks current state and ignores transitions from a
// terminal state").
func (o *Orchestrator) CompletePayment(ctx context.Context, orderID int64, transactionKey *string) error {
	return withTx(ctx, o.db, func(tx store.TxController) error {
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
		if err := o.payments.UpdateStatus(ctx, tx, payment.ID, domain.PaymentSuccess, transactionKey); err != nil {
			return err
		}
		return o.orders.UpdateStatus(ctx, tx, orderID, domain.OrderCompleted)
	})
}

func (o *Orchestrator) recordPendingTransaction(ctx context.Context, orderID int64, transactionKey string) error {
	return withTx(ctx, o.db, func(tx store.TxController) error {
		payment, err := o.payments.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return o.payments.UpdateStatus(ctx, tx, payment.ID, payment.Status, &transactionKey)
	})
}
