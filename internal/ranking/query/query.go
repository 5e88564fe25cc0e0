// Package query implements RankingQueryService: sorted-set-backed top-K
// retrieval with a graceful degradation ladder down to a persisted
// snapshot and finally a default catalog view (spec §4.9).
package query

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/ranking"
	"github.com/loopers/commerce-core/internal/ranking/kvcache"
	"github.com/loopers/commerce-core/internal/ranking/snapshot"
	"github.com/loopers/commerce-core/internal/ranking/zsetstore"
	"github.com/loopers/commerce-core/internal/store"
)

// RankedProduct is one page entry: rank, score, and the hydrated
// product/brand detail.
type RankedProduct struct {
	Rank    int
	Score   float64
	Product *domain.Product
	Brand   *domain.Brand
}

// Page is one page of rankings.
type Page struct {
	Items   []RankedProduct
	HasNext bool
}

// Service implements getRankings and getProductRank over the live ZSET,
// falling back to snapshots and finally the default catalog view.
type Service struct {
	zset     *zsetstore.Store
	snaps    *snapshot.Store
	products store.ProductStore
	brands   store.BrandStore
	cache    *kvcache.Cache
	db       store.Tx
	log      zerolog.Logger
}

func New(zset *zsetstore.Store, snaps *snapshot.Store, products store.ProductStore, brands store.BrandStore, cache *kvcache.Cache, db store.Tx, log zerolog.Logger) *Service {
	return &Service{zset: zset, snaps: snaps, products: products, brands: brands, cache: cache, db: db, log: log}
}

// GetRankings returns one page of rankings for date, falling through the
// degradation ladder of spec §4.9 on each failure: live ZSET -> today's
// snapshot -> yesterday's snapshot -> default catalog view. It never
// returns an error for availability reasons (spec §8 invariant 7); a
// non-nil error here means every rung, including the default view, failed.
func (s *Service) GetRankings(ctx context.Context, date time.Time, page, size int) (Page, error) {
	if size <= 0 {
		size = 20
	}
	start := int64(page * size)
	end := start + int64(size) - 1

	if p, ok, err := s.fromLiveZSet(ctx, date, start, end, size); err == nil && ok {
		return p, nil
	} else if err != nil {
		s.log.Warn().Err(err).Msg("ranking live zset read failed, falling back to snapshot")
	}

	if p, ok, err := s.fromSnapshot(ctx, date, start, end, size); err == nil && ok {
		return p, nil
	} else if err != nil {
		s.log.Warn().Err(err).Msg("ranking today snapshot read failed, trying yesterday")
	}

	if p, ok, err := s.fromSnapshot(ctx, date.AddDate(0, 0, -1), start, end, size); err == nil && ok {
		return p, nil
	} else if err != nil {
		s.log.Warn().Err(err).Msg("ranking yesterday snapshot read failed, falling back to default view")
	}

	return s.fromDefaultView(ctx, page, size)
}

func (s *Service) fromLiveZSet(ctx context.Context, date time.Time, start, end int64, size int) (Page, bool, error) {
	key := ranking.Key(date)
	members, err := s.zset.RevRangeWithScores(ctx, key, start, end)
	if err != nil {
		return Page{}, false, err
	}
	if len(members) == 0 {
		return Page{}, false, nil
	}
	total, err := s.zset.Card(ctx, key)
	if err != nil {
		return Page{}, false, err
	}

	items, err := s.hydrate(ctx, members, int(start))
	if err != nil {
		return Page{}, false, err
	}
	return Page{Items: items, HasNext: start+int64(size) < total}, true, nil
}

func (s *Service) fromSnapshot(ctx context.Context, date time.Time, start, end int64, size int) (Page, bool, error) {
	snap, err := s.snaps.Get(ctx, date.UTC().Format("20060102"))
	if err != nil {
		return Page{}, false, err
	}
	if snap == nil || len(snap.Items) == 0 {
		return Page{}, false, nil
	}

	lo := int(start)
	hi := int(end) + 1
	if lo >= len(snap.Items) {
		return Page{Items: nil, HasNext: false}, true, nil
	}
	if hi > len(snap.Items) {
		hi = len(snap.Items)
	}

	members := make([]zsetstore.Member, 0, hi-lo)
	for _, it := range snap.Items[lo:hi] {
		members = append(members, zsetstore.Member{Member: strconv.FormatInt(it.ProductID, 10), Score: it.Score})
	}
	items, err := s.hydrate(ctx, members, lo)
	if err != nil {
		return Page{}, false, err
	}
	return Page{Items: items, HasNext: int64(lo+size) < snap.TotalSize}, true, nil
}

// fromDefaultView is the last rung: products ordered by likeCount
// descending, ranks assigned by position, scores = likeCount (spec §4.9
// step 4). Never fails the caller short of the database itself being
// unreachable, which here surfaces as an error since there is no further
// fallback.
func (s *Service) fromDefaultView(ctx context.Context, page, size int) (Page, error) {
	products, err := s.products.FindOrderedByLikeCount(ctx, page*size, size)
	if err != nil {
		return Page{}, fmt.Errorf("default ranking view: %w", err)
	}
	brandIDs := uniqueBrandIDs(products)
	brandByID, err := s.loadBrands(ctx, brandIDs)
	if err != nil {
		return Page{}, err
	}

	items := make([]RankedProduct, 0, len(products))
	rank := page*size + 1
	for _, p := range products {
		b := brandByID[p.BrandID]
		items = append(items, RankedProduct{Rank: rank, Score: float64(p.LikeCount), Product: p, Brand: b})
		rank++
	}
	return Page{Items: items, HasNext: len(products) == size}, nil
}

// GetProductRank returns productId's 1-based rank for date, or nil if it
// has no rank. On Redis failure it tries yesterday's ZSET once; it never
// computes a rank from the default view (spec §4.9).
func (s *Service) GetProductRank(ctx context.Context, productID int64, date time.Time) (*int64, error) {
	member := strconv.FormatInt(productID, 10)

	rank, found, err := s.zset.RevRank(ctx, ranking.Key(date), member)
	if err == nil {
		if !found {
			return nil, nil
		}
		oneBased := rank + 1
		return &oneBased, nil
	}
	s.log.Warn().Err(err).Msg("ranking rank lookup failed, trying yesterday's zset")

	rank, found, err = s.zset.RevRank(ctx, ranking.Key(date.AddDate(0, 0, -1)), member)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	oneBased := rank + 1
	return &oneBased, nil
}

// hydrate batch-loads products then brands for members, skipping any item
// whose product or brand is missing (spec §4.9 step 4, logged at WARN).
func (s *Service) hydrate(ctx context.Context, members []zsetstore.Member, startRank int) ([]RankedProduct, error) {
	ids := make([]int64, 0, len(members))
	scoreByID := make(map[int64]float64, len(members))
	order := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			s.log.Warn().Str("member", m.Member).Msg("skipping non-numeric ranking member")
			continue
		}
		ids = append(ids, id)
		scoreByID[id] = m.Score
		order = append(order, id)
	}

	products, err := s.loadProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	productByID := make(map[int64]*domain.Product, len(products))
	brandIDSet := make(map[int64]bool)
	for _, p := range products {
		productByID[p.ID] = p
		brandIDSet[p.BrandID] = true
	}
	brandIDs := make([]int64, 0, len(brandIDSet))
	for id := range brandIDSet {
		brandIDs = append(brandIDs, id)
	}
	brandByID, err := s.loadBrands(ctx, brandIDs)
	if err != nil {
		return nil, err
	}

	out := make([]RankedProduct, 0, len(order))
	rank := startRank + 1
	for _, id := range order {
		p, ok := productByID[id]
		if !ok {
			s.log.Warn().Int64("product_id", id).Msg("skipping ranking item: product not found")
			rank++
			continue
		}
		b, ok := brandByID[p.BrandID]
		if !ok {
			s.log.Warn().Int64("product_id", id).Int64("brand_id", p.BrandID).Msg("skipping ranking item: brand not found")
			rank++
			continue
		}
		out = append(out, RankedProduct{Rank: rank, Score: scoreByID[id], Product: p, Brand: b})
		rank++
	}
	return out, nil
}

// loadProducts tries the KVCache before falling through to Postgres,
// populating the cache on a miss (spec §4 Components: "used for catalog
// hot reads").
func (s *Service) loadProducts(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if s.cache == nil {
		return s.products.FindByIDs(ctx, s.db, ids)
	}

	var missing []int64
	found := make(map[int64]*domain.Product, len(ids))
	for _, id := range ids {
		var p domain.Product
		ok, err := s.cache.Get(ctx, productCacheKey(id), &p)
		if err != nil {
			s.log.Warn().Err(err).Int64("product_id", id).Msg("kvcache read failed")
		}
		if ok {
			found[id] = &p
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fetched, err := s.products.FindByIDs(ctx, s.db, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range fetched {
			found[p.ID] = p
			if err := s.cache.Set(ctx, productCacheKey(p.ID), p, 5*time.Minute); err != nil {
				s.log.Warn().Err(err).Int64("product_id", p.ID).Msg("kvcache write failed")
			}
		}
	}

	out := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) loadBrands(ctx context.Context, ids []int64) (map[int64]*domain.Brand, error) {
	if len(ids) == 0 {
		return map[int64]*domain.Brand{}, nil
	}
	brands, err := s.brands.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*domain.Brand, len(brands))
	for _, b := range brands {
		out[b.ID] = b
	}
	return out, nil
}

func uniqueBrandIDs(products []*domain.Product) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, p := range products {
		if !seen[p.BrandID] {
			seen[p.BrandID] = true
			ids = append(ids, p.BrandID)
		}
	}
	return ids
}

func productCacheKey(id int64) string {
	return fmt.Sprintf("catalog:product:%d", id)
}
