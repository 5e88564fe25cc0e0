package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/store"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository { return &OrderRepository{db: db} }

func (r *OrderRepository) Save(ctx context.Context, tx store.Tx, o *domain.Order) (int64, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return 0, fmt.Errorf("marshal order items: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, items, subtotal, discount_amount, used_points, total_amount, coupon_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING id`,
		o.UserID, itemsJSON, o.Subtotal, o.DiscountAmount, o.UsedPoints, o.TotalAmount, o.CouponCode, o.Status)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("save order: %w", err)
	}
	o.ID = id
	return id, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, tx store.Tx, orderID int64, status domain.OrderStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, tx store.Tx, orderID int64) (*domain.Order, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, user_id, items, subtotal, discount_amount, used_points, total_amount, coupon_code, status, created_at
		FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (r *OrderRepository) FindPending(ctx context.Context) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, items, subtotal, discount_amount, used_points, total_amount, coupon_code, status, created_at
		FROM orders WHERE status = $1`, domain.OrderPending)
	if err != nil {
		return nil, fmt.Errorf("find pending orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var itemsJSON []byte
	if err := row.Scan(&o.ID, &o.UserID, &itemsJSON, &o.Subtotal, &o.DiscountAmount, &o.UsedPoints, &o.TotalAmount, &o.CouponCode, &o.Status, &o.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &o, nil
}

func scanOrderRows(rows *sql.Rows) (*domain.Order, error) {
	return scanOrder(rows)
}
