package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := config.PaymentConfig{
		BaseURL:          srv.URL,
		Timeout:          time.Second,
		Bulkhead:         10,
		CircuitThreshold: 0.9,
		CircuitWindow:    20,
		CircuitOpenFor:   time.Second,
	}
	return NewClient(cfg), srv
}

func TestClient_RequestPayment_DecodesSuccess(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "ext-1", r.Header.Get("X-USER-ID"))
		var req PaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(42), req.OrderID)
		_ = json.NewEncoder(w).Encode(PaymentResponse{TransactionKey: "tx-1", Status: StatusPending})
	})
	defer srv.Close()

	resp, err := c.RequestPayment(context.Background(), "ext-1", PaymentRequest{OrderID: 42, Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", resp.TransactionKey)
	assert.Equal(t, StatusPending, resp.Status)
}

func TestClient_RequestPayment_ServerErrorIsGatewayUnavailable(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	_, err := c.RequestPayment(context.Background(), "ext-1", PaymentRequest{OrderID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrGatewayUnavailable)
}

func TestClient_RequestPayment_ClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})
	defer srv.Close()

	_, err := c.RequestPayment(context.Background(), "ext-1", PaymentRequest{OrderID: 1})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClient_GetTransactionsByOrder_DecodesList(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments?orderId=7", r.URL.RequestURI())
		_ = json.NewEncoder(w).Encode([]Transaction{{TransactionKey: "tx-7", OrderID: 7, Status: StatusSuccess}})
	})
	defer srv.Close()

	txs, err := c.GetTransactionsByOrder(context.Background(), "ext-1", 7)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, StatusSuccess, txs[0].Status)
}

func TestClient_GetTransaction_DecodesSingle(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/tx-9", r.URL.RequestURI())
		_ = json.NewEncoder(w).Encode(Transaction{TransactionKey: "tx-9", OrderID: 9, Status: StatusFailed})
	})
	defer srv.Close()

	tx, err := c.GetTransaction(context.Background(), "ext-1", "tx-9")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, tx.Status)
}
