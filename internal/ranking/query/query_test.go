package query

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/ranking"
	"github.com/loopers/commerce-core/internal/ranking/kvcache"
	"github.com/loopers/commerce-core/internal/ranking/snapshot"
	"github.com/loopers/commerce-core/internal/ranking/zsetstore"
	"github.com/loopers/commerce-core/internal/store"
)

type fakeProducts struct {
	byID map[int64]*domain.Product
}

func (f *fakeProducts) LockForUpdate(ctx context.Context, tx store.Tx, productID int64) (*domain.Product, error) {
	return nil, nil
}
func (f *fakeProducts) Save(ctx context.Context, tx store.Tx, p *domain.Product) error { return nil }
func (f *fakeProducts) FindByIDs(ctx context.Context, tx store.Tx, ids []int64) ([]*domain.Product, error) {
	var out []*domain.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeProducts) FindOrderedByLikeCount(ctx context.Context, offset, limit int) ([]*domain.Product, error) {
	return nil, nil
}

type fakeBrands struct {
	byID map[int64]*domain.Brand
}

func (f *fakeBrands) FindByIDs(ctx context.Context, tx store.Tx, ids []int64) ([]*domain.Brand, error) {
	var out []*domain.Brand
	for _, id := range ids {
		if b, ok := f.byID[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func newTestService(t *testing.T, products *fakeProducts, brands *fakeBrands) (*Service, *zsetstore.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	zset := zsetstore.New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	snaps := snapshot.NewStore(nil) // unreachable when the live zset rung succeeds
	svc := New(zset, snaps, products, brands, nil, nil, zerolog.Nop())
	return svc, zset
}

func TestService_GetRankings_FromLiveZSet(t *testing.T) {
	ctx := context.Background()
	products := &fakeProducts{byID: map[int64]*domain.Product{
		1: {ID: 1, Name: "Widget", BrandID: 10},
		2: {ID: 2, Name: "Gadget", BrandID: 10},
	}}
	brands := &fakeBrands{byID: map[int64]*domain.Brand{10: {ID: 10, Name: "Acme"}}}
	svc, zset := newTestService(t, products, brands)

	key := ranking.Key(ranking.Today())
	require.NoError(t, zset.IncrBy(ctx, key, "1", 5))
	require.NoError(t, zset.IncrBy(ctx, key, "2", 3))

	page, err := svc.GetRankings(ctx, ranking.Today(), 0, 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 1, page.Items[0].Rank)
	require.Equal(t, "Widget", page.Items[0].Product.Name)
	require.Equal(t, "Acme", page.Items[0].Brand.Name)
	require.False(t, page.HasNext)
}

func TestService_GetRankings_SkipsMissingProduct(t *testing.T) {
	ctx := context.Background()
	products := &fakeProducts{byID: map[int64]*domain.Product{
		1: {ID: 1, Name: "Widget", BrandID: 10},
	}}
	brands := &fakeBrands{byID: map[int64]*domain.Brand{10: {ID: 10, Name: "Acme"}}}
	svc, zset := newTestService(t, products, brands)

	key := ranking.Key(ranking.Today())
	require.NoError(t, zset.IncrBy(ctx, key, "1", 5))
	require.NoError(t, zset.IncrBy(ctx, key, "999", 3)) // no backing product row

	page, err := svc.GetRankings(ctx, ranking.Today(), 0, 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, int64(1), page.Items[0].Product.ID)
}

func TestService_GetProductRank(t *testing.T) {
	ctx := context.Background()
	svc, zset := newTestService(t, &fakeProducts{}, &fakeBrands{})
	key := ranking.Key(ranking.Today())
	require.NoError(t, zset.IncrBy(ctx, key, "1", 5))
	require.NoError(t, zset.IncrBy(ctx, key, "2", 10))

	rank, err := svc.GetProductRank(ctx, 1, ranking.Today())
	require.NoError(t, err)
	require.NotNil(t, rank)
	require.Equal(t, int64(2), *rank)

	rank, err = svc.GetProductRank(ctx, 999, ranking.Today())
	require.NoError(t, err)
	require.Nil(t, rank)
}

func TestService_LoadProducts_UsesCache(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cache := kvcache.New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	products := &fakeProducts{byID: map[int64]*domain.Product{
		1: {ID: 1, Name: "Widget", BrandID: 10},
	}}
	svc := &Service{products: products, cache: cache, log: zerolog.Nop()}

	got, err := svc.loadProducts(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Widget", got[0].Name)

	// Remove the backing row; a cached hit must still resolve it.
	products.byID = map[int64]*domain.Product{}
	got, err = svc.loadProducts(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Widget", got[0].Name)
}
