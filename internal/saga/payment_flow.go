package saga

import (
	"context"
	"errors"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/gateway"
)

// requestPaymentAsync is the "after commit" step of spec §4.1: invoke the
// gateway; a synchronous terminal response drives the state machine
// immediately, a PENDING transactionKey is recorded and left for the
// recovery loop, and GatewayUnavailable leaves the order untouched.
func (o *Orchestrator) requestPaymentAsync(ctx context.Context, orderID, amount int64, req CreateOrderRequest) {
	resp, err := o.gateway.RequestPayment(ctx, req.ExternalUserID, gateway.PaymentRequest{
		OrderID:     orderID,
		CardType:    req.CardType,
		CardNo:      req.CardNo,
		Amount:      amount,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrGatewayUnavailable) {
			o.log.Warn().Int64("order_id", orderID).Msg("payment gateway unavailable; leaving order pending for recovery")
			return
		}
		o.log.Error().Err(err).Int64("order_id", orderID).Msg("payment request failed")
		return
	}

	switch resp.Status {
	case gateway.StatusSuccess:
		if err := o.CompletePayment(ctx, orderID, &resp.TransactionKey); err != nil {
			o.log.Error().Err(err).Int64("order_id", orderID).Msg("failed to apply payment completion")
		}
	case gateway.StatusFailed:
		if err := o.FailPayment(ctx, orderID); err != nil {
			o.log.Error().Err(err).Int64("order_id", orderID).Msg("failed to apply payment compensation")
		}
	case gateway.StatusPending:
		if err := o.recordPendingTransaction(ctx, orderID, resp.TransactionKey); err != nil {
			o.log.Error().Err(err).Int64("order_id", orderID).Msg("failed to record pending transaction key")
		}
	}
}
