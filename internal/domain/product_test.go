package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopers/commerce-core/internal/apperr"
)

func TestProduct_ReserveStock(t *testing.T) {
	p := &Product{Stock: 5}
	require.NoError(t, p.ReserveStock(3))
	assert.Equal(t, int64(2), p.Stock)

	err := p.ReserveStock(3)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflictTerminal, apperr.KindOf(err))
}

func TestProduct_ReserveStock_RejectsNonPositive(t *testing.T) {
	p := &Product{Stock: 5}
	err := p.ReserveStock(0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestProduct_ReleaseStock(t *testing.T) {
	p := &Product{Stock: 2}
	p.ReleaseStock(3)
	assert.Equal(t, int64(5), p.Stock)
}

func TestUser_DebitCredit(t *testing.T) {
	u := &User{PointBalance: 1000}
	require.NoError(t, u.DebitPoints(400))
	assert.Equal(t, int64(600), u.PointBalance)

	err := u.DebitPoints(700)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflictTerminal, apperr.KindOf(err))

	u.CreditPoints(700)
	assert.Equal(t, int64(1300), u.PointBalance)
}

func TestOrder_Transition(t *testing.T) {
	o := &Order{Status: OrderPending}
	assert.True(t, o.Transition(OrderCompleted))
	assert.Equal(t, OrderCompleted, o.Status)
	// Terminal: no further transitions.
	assert.False(t, o.Transition(OrderCanceled))
	assert.Equal(t, OrderCompleted, o.Status)
}
