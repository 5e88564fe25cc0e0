package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/store"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository { return &ProductRepository{db: db} }

// LockForUpdate locks a single product row. Callers iterating multiple
// products must do so in ascending productId order to avoid deadlocks
// (spec §4.1 step 2).
func (r *ProductRepository) LockForUpdate(ctx context.Context, tx store.Tx, productID int64) (*domain.Product, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, brand_id, name, price, stock, like_count
		FROM products
		WHERE id = $1
		FOR UPDATE`, productID)

	var p domain.Product
	if err := row.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product for update: %w", err)
	}
	return &p, nil
}

func (r *ProductRepository) Save(ctx context.Context, tx store.Tx, p *domain.Product) error {
	_, err := tx.ExecContext(ctx, `UPDATE products SET stock = $1 WHERE id = $2`, p.Stock, p.ID)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, tx store.Tx, ids []int64) ([]*domain.Product, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, brand_id, name, price, stock, like_count
		FROM products
		WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("find products by ids: %w", err)
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// FindOrderedByLikeCount backs the default ranking view fallback (spec §4.9
// step 4): products ordered by LikeCount descending, paginated.
func (r *ProductRepository) FindOrderedByLikeCount(ctx context.Context, offset, limit int) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, brand_id, name, price, stock, like_count
		FROM products
		ORDER BY like_count DESC, id ASC
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("find products ordered by like_count: %w", err)
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SyncLikeCounts recomputes products.like_count from the likes table with
// two set-based UPDATEs over all products; batchSize is not used. This is
// the single designated writer of LikeCount (spec §9).
func (r *ProductRepository) SyncLikeCounts(ctx context.Context, batchSize int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE products p
		SET like_count = coalesce(l.cnt, 0)
		FROM (
			SELECT product_id, COUNT(*) AS cnt
			FROM likes
			GROUP BY product_id
		) l
		WHERE p.id = l.product_id`)
	if err != nil {
		return fmt.Errorf("sync like counts: %w", err)
	}

	// Zero out products that have no remaining likes rows at all (left
	// out of the join above).
	_, err = r.db.ExecContext(ctx, `
		UPDATE products
		SET like_count = 0
		WHERE id NOT IN (SELECT DISTINCT product_id FROM likes) AND like_count <> 0`)
	if err != nil {
		return fmt.Errorf("zero stale like counts: %w", err)
	}
	return nil
}
