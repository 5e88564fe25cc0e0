package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopers/commerce-core/internal/ranking"
	"github.com/loopers/commerce-core/internal/ranking/zsetstore"
	"github.com/loopers/commerce-core/internal/store"
)

// Writer is the periodic task of spec §4.8: every interval, read the top
// topK of today's ZSET, hydrate against the product catalog to drop
// deleted products, and persist.
type Writer struct {
	zset     *zsetstore.Store
	products store.ProductStore
	db       store.Tx
	snaps    *Store
	topK     int
	interval time.Duration
	log      zerolog.Logger
}

func NewWriter(zset *zsetstore.Store, products store.ProductStore, db store.Tx, snaps *Store, topK int, interval time.Duration, log zerolog.Logger) *Writer {
	return &Writer{zset: zset, products: products, db: db, snaps: snaps, topK: topK, interval: interval, log: log}
}

func (w *Writer) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.writeOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("ranking snapshot write failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Writer) writeOnce(ctx context.Context) error {
	today := ranking.Today()
	key := ranking.Key(today)

	members, err := w.zset.RevRangeWithScores(ctx, key, 0, int64(w.topK-1))
	if err != nil {
		return err
	}
	total, err := w.zset.Card(ctx, key)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(members))
	scoreByID := make(map[int64]float64, len(members))
	order := make([]int64, 0, len(members))
	for _, m := range members {
		id, ok := parseProductID(m.Member)
		if !ok {
			continue
		}
		ids = append(ids, id)
		scoreByID[id] = m.Score
		order = append(order, id)
	}

	existing, err := w.products.FindByIDs(ctx, w.db, ids)
	if err != nil {
		return err
	}
	known := make(map[int64]bool, len(existing))
	for _, p := range existing {
		known[p.ID] = true
	}

	items := make([]Item, 0, len(order))
	rank := 0
	for _, id := range order {
		if !known[id] {
			w.log.Warn().Int64("product_id", id).Msg("skipping missing product in ranking snapshot")
			continue
		}
		rank++
		items = append(items, Item{Rank: rank, ProductID: id, Score: scoreByID[id]})
	}

	return w.snaps.Put(ctx, Snapshot{
		Date:      today.Format("20060102"),
		Items:     items,
		TotalSize: total,
	})
}
