// Package recovery implements PaymentRecoveryLoop: a periodic reconciler
// that resolves pending orders by polling the external gateway (spec
// §4.5).
package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/gateway"
	"github.com/loopers/commerce-core/internal/store"
)

// PaymentCompleter is the narrow slice of saga.Orchestrator the recovery
// loop drives; satisfied by *saga.Orchestrator.
type PaymentCompleter interface {
	CompletePayment(ctx context.Context, orderID int64, transactionKey *string) error
	FailPayment(ctx context.Context, orderID int64) error
}

// GatewayClient is the narrow slice of gateway.Client the recovery loop
// calls; scheduler-path method, so it carries the retry policy (spec
// §4.4).
type GatewayClient interface {
	GetTransactionsByOrder(ctx context.Context, externalUserID string, orderID int64) ([]gateway.Transaction, error)
}

// Loop polls OrderStore every interval and converges each PENDING order
// with the gateway's view of its payment (spec §4.5). One order's failure
// never aborts the batch.
type Loop struct {
	orders   store.OrderStore
	users    store.UserStore
	db       store.Tx
	gateway  GatewayClient
	saga     PaymentCompleter
	interval time.Duration
	log      zerolog.Logger
}

func New(orders store.OrderStore, users store.UserStore, db store.Tx, gw GatewayClient, saga PaymentCompleter, interval time.Duration, log zerolog.Logger) *Loop {
	return &Loop{orders: orders, users: users, db: db, gateway: gw, saga: saga, interval: interval, log: log}
}

// Start runs Tick every interval until ctx is canceled. Overlapping runs
// are forbidden (spec §5): each tick waits for the previous to finish
// because the ticker loop is single-goroutine.
func (l *Loop) Start(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick processes every PENDING order once; spec §8 invariant 8: running
// this over an already-terminal order is a no-op, since CompletePayment and
// FailPayment both check Order.Status.IsTerminal() before acting.
func (l *Loop) Tick(ctx context.Context) {
	pending, err := l.orders.FindPending(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("recovery: failed to list pending orders")
		return
	}

	for _, order := range pending {
		if err := l.reconcileOne(ctx, order); err != nil {
			l.log.Error().Err(err).Int64("order_id", order.ID).Msg("recovery: failed to reconcile order")
		}
	}
}

func (l *Loop) reconcileOne(ctx context.Context, order *domain.Order) error {
	user, err := l.users.FindByID(ctx, l.db, order.UserID)
	if err != nil {
		return err
	}

	txs, err := l.gateway.GetTransactionsByOrder(ctx, user.ExternalUserID, order.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrGatewayUnavailable) {
			// Gateway unavailable: skip this iteration for this order
			// (spec §4.5); try again next cycle.
			return nil
		}
		return err
	}

	switch terminalStatus(txs) {
	case gateway.StatusSuccess:
		key := latestTransactionKey(txs)
		return l.saga.CompletePayment(ctx, order.ID, key)
	case gateway.StatusFailed:
		return l.saga.FailPayment(ctx, order.ID)
	default:
		// PENDING/unknown: leave in place for the next cycle.
		return nil
	}
}

// terminalStatus maps a set of transactions to the order-level outcome:
// any SUCCESS wins, else any FAILED, else PENDING (spec §4.5).
func terminalStatus(txs []gateway.Transaction) gateway.Status {
	sawFailed := false
	for _, tx := range txs {
		switch tx.Status {
		case gateway.StatusSuccess:
			return gateway.StatusSuccess
		case gateway.StatusFailed:
			sawFailed = true
		}
	}
	if sawFailed {
		return gateway.StatusFailed
	}
	return gateway.StatusPending
}

func latestTransactionKey(txs []gateway.Transaction) *string {
	for _, tx := range txs {
		if tx.Status == gateway.StatusSuccess {
			key := tx.TransactionKey
			return &key
		}
	}
	return nil
}
