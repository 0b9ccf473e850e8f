package service

import (
	"errors"
	"testing"

	"procuretrack/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInventoryFixture(t *testing.T) (*fixture, InventoryService) {
	f := newFixture(t)
	return f, NewInventoryService(f.store.Inventory(), f.store.Activity(), f.store, f.cache, zap.NewNop())
}

func TestCreateItemWithOpeningBalance(t *testing.T) {
	f, svc := newInventoryFixture(t)
	supply := f.actor(model.RoleSupply)

	item, err := svc.CreateItem(f.ctx, supply, CreateItemRequest{SKU: "bond-a4", Name: "Bond paper A4", Unit: "ream", InitialStock: 25})
	require.NoError(t, err)
	assert.Equal(t, "BOND-A4", item.SKU)
	assert.Equal(t, 25, item.StockOnHand)

	id := uuid.MustParse(item.ID)
	movements, total, err := svc.ListMovements(f.ctx, &id, nil, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.MovementIn, movements[0].MovementType)
	assert.Equal(t, 0, movements[0].StockBefore)
	assert.Equal(t, 25, movements[0].StockAfter)

	_, err = svc.CreateItem(f.ctx, supply, CreateItemRequest{SKU: "BOND-A4", Name: "dup"})
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestReceiveAndAdjustStock(t *testing.T) {
	f, svc := newInventoryFixture(t)
	supply := f.actor(model.RoleSupply)
	item := f.seedItem("CHALK", 4)

	m, err := svc.Receive(f.ctx, supply, item.ID, ReceiveStockRequest{Quantity: 6, Reference: "DR-1182"})
	require.NoError(t, err)
	assert.Equal(t, 4, m.StockBefore)
	assert.Equal(t, 10, m.StockAfter)

	m, err = svc.Adjust(f.ctx, supply, item.ID, AdjustStockRequest{MovementType: model.MovementAdjustment, Quantity: -3, Note: "damaged by water leak"})
	require.NoError(t, err)
	assert.Equal(t, 7, m.StockAfter)

	m, err = svc.Adjust(f.ctx, supply, item.ID, AdjustStockRequest{MovementType: model.MovementReturn, Quantity: 1, Note: "returned unused"})
	require.NoError(t, err)
	assert.Equal(t, 8, m.StockAfter)

	_, err = svc.Adjust(f.ctx, supply, item.ID, AdjustStockRequest{MovementType: model.MovementAdjustment, Quantity: -9, Note: "count"})
	assert.True(t, errors.Is(err, ErrConflict))
	_, err = svc.Adjust(f.ctx, supply, item.ID, AdjustStockRequest{MovementType: model.MovementReturn, Quantity: -1, Note: "x"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = svc.Adjust(f.ctx, supply, item.ID, AdjustStockRequest{MovementType: model.MovementAdjustment, Quantity: 2})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = svc.Receive(f.ctx, supply, uuid.New(), ReceiveStockRequest{Quantity: 1})
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := svc.GetItem(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.StockOnHand)

	// Every movement chains from the previous balance.
	movements, _, err := svc.ListMovements(f.ctx, &item.ID, nil, 1, 50)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	for i := 0; i < len(movements)-1; i++ {
		assert.Equal(t, movements[i+1].StockAfter, movements[i].StockBefore)
	}

	items, total, err := svc.ListItems(f.ctx, "cha", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "CHALK", items[0].SKU)
}
