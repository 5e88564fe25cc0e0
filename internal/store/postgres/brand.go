package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/store"
)

type BrandRepository struct{}

func NewBrandRepository() *BrandRepository { return &BrandRepository{} }

func (r *BrandRepository) FindByIDs(ctx context.Context, tx store.Tx, ids []int64) ([]*domain.Brand, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM brands WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("find brands by ids: %w", err)
	}
	defer rows.Close()

	var out []*domain.Brand
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
