package kvcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
}

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "k", item{Name: "widget"}, time.Minute))

	var got item
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "widget", got.Name)
}

func TestCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var got item
	ok, err := c.Get(ctx, "missing", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCache_Evict(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	require.NoError(t, c.Set(ctx, "k", item{Name: "widget"}, time.Minute))
	require.NoError(t, c.Evict(ctx, "k"))

	var got item
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, ok)
}
