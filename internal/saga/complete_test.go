package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopers/commerce-core/internal/domain"
)

func TestCompletePayment_TransitionsOrderAndPayment(t *testing.T) {
	h := newHarness()
	h.orders.byID[1] = &domain.Order{ID: 1, UserID: 1, Status: domain.OrderPending}
	h.payments.byID[1] = &domain.Payment{ID: 1, OrderID: 1, Status: domain.PaymentPending}
	h.payments.byOrderID[1] = h.payments.byID[1]

	key := "tx-key-1"
	require.NoError(t, h.orch.CompletePayment(context.Background(), 1, &key))

	assert.Equal(t, domain.OrderCompleted, h.orders.byID[1].Status)
	assert.Equal(t, domain.PaymentSuccess, h.payments.byID[1].Status)
	require.NotNil(t, h.payments.byID[1].TransactionKey)
	assert.Equal(t, "tx-key-1", *h.payments.byID[1].TransactionKey)
}

func TestCompletePayment_NoopOnTerminalOrder(t *testing.T) {
	h := newHarness()
	h.orders.byID[1] = &domain.Order{ID: 1, UserID: 1, Status: domain.OrderCanceled}
	h.payments.byID[1] = &domain.Payment{ID: 1, OrderID: 1, Status: domain.PaymentFailed}
	h.payments.byOrderID[1] = h.payments.byID[1]

	key := "tx-key-2"
	require.NoError(t, h.orch.CompletePayment(context.Background(), 1, &key))

	// Already terminal: must not flip back to COMPLETED or touch the
	// payment row.
	assert.Equal(t, domain.OrderCanceled, h.orders.byID[1].Status)
	assert.Equal(t, domain.PaymentFailed, h.payments.byID[1].Status)
}

func TestRecordPendingTransaction_StoresKeyWithoutChangingStatus(t *testing.T) {
	h := newHarness()
	h.payments.byID[1] = &domain.Payment{ID: 1, OrderID: 1, Status: domain.PaymentPending}
	h.payments.byOrderID[1] = h.payments.byID[1]

	require.NoError(t, h.orch.recordPendingTransaction(context.Background(), 1, "tx-pending"))

	assert.Equal(t, domain.PaymentPending, h.payments.byID[1].Status)
	require.NotNil(t, h.payments.byID[1].TransactionKey)
	assert.Equal(t, "tx-pending", *h.payments.byID[1].TransactionKey)
}
