package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/store"
)

type PaymentRepository struct{}

func NewPaymentRepository() *PaymentRepository { return &PaymentRepository{} }

func (r *PaymentRepository) Save(ctx context.Context, tx store.Tx, p *domain.Payment) (int64, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, user_id, amount, card_type, transaction_key, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`, p.OrderID, p.UserID, p.Amount, p.CardType, p.TransactionKey, p.Status)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("save payment: %w", err)
	}
	p.ID = id
	return id, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx store.Tx, paymentID int64, status domain.PaymentStatus, transactionKey *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = $1, transaction_key = coalesce($2, transaction_key) WHERE id = $3`,
		status, transactionKey, paymentID)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, tx store.Tx, orderID int64) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, amount, card_type, transaction_key, status
		FROM payments WHERE order_id = $1`, orderID)

	var p domain.Payment
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.CardType, &p.TransactionKey, &p.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrOrderNotFound
		}
		return nil, fmt.Errorf("find payment by order id: %w", err)
	}
	return &p, nil
}
