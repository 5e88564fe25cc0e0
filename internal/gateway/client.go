// Package gateway is the PaymentGatewayClient: an HTTP client to the
// external payment gateway wrapped in CircuitBreaker -> Bulkhead -> Retry
// middleware, with the request timeout applied to each attempt (spec §4.4).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/config"
)

// Status mirrors the gateway's own vocabulary.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

type PaymentRequest struct {
	OrderID     int64  `json:"orderId"`
	CardType    string `json:"cardType"`
	CardNo      string `json:"cardNo"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callbackUrl"`
}

type PaymentResponse struct {
	TransactionKey string `json:"transactionKey"`
	Status         Status `json:"status"`
}

type Transaction struct {
	TransactionKey string `json:"transactionKey"`
	OrderID        int64  `json:"orderId"`
	Status         Status `json:"status"`
}

// Client talks to the external payment gateway. Each method is wrapped by
// Middleware (see resilience.go); RequestPayment never retries (user
// path), the query methods use the scheduler-path retry policy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	resilience *Middleware
}

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		resilience: NewMiddleware(cfg),
	}
}

// RequestPayment is the user-facing call: no retry, fail fast (spec §4.4).
func (c *Client) RequestPayment(ctx context.Context, externalUserID string, req PaymentRequest) (*PaymentResponse, error) {
	var resp PaymentResponse
	err := c.resilience.NoRetry(ctx, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, "/api/v1/payments", externalUserID, req, &resp)
	})
	if err != nil {
		// With no retry on this path, a transient failure (5xx, transport
		// error) is reported as unavailable too; a 4xx is returned as is.
		if isGatewayUnavailable(err) || isRetryable(err) {
			return nil, apperr.ErrGatewayUnavailable
		}
		return nil, err
	}
	return &resp, nil
}

// GetTransactionsByOrder is scheduler-driven: retried with exponential
// backoff and jitter on transient failures (spec §4.4).
func (c *Client) GetTransactionsByOrder(ctx context.Context, externalUserID string, orderID int64) ([]Transaction, error) {
	var txs []Transaction
	err := c.resilience.WithRetry(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("/api/v1/payments?orderId=%d", orderID)
		return c.doJSON(ctx, http.MethodGet, path, externalUserID, nil, &txs)
	})
	if err != nil {
		if isGatewayUnavailable(err) {
			return nil, apperr.ErrGatewayUnavailable
		}
		return nil, err
	}
	return txs, nil
}

// GetTransaction is scheduler-driven, same retry policy.
func (c *Client) GetTransaction(ctx context.Context, externalUserID, transactionKey string) (*Transaction, error) {
	var tx Transaction
	err := c.resilience.WithRetry(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("/api/v1/payments/%s", transactionKey)
		return c.doJSON(ctx, http.MethodGet, path, externalUserID, nil, &tx)
	})
	if err != nil {
		if isGatewayUnavailable(err) {
			return nil, apperr.ErrGatewayUnavailable
		}
		return nil, err
	}
	return &tx, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, externalUserID string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-USER-ID", externalUserID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return newStatusError(resp.StatusCode, true)
	}
	if resp.StatusCode >= 400 {
		return newStatusError(resp.StatusCode, false)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
