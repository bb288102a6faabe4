package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendMovement(t *testing.T, repo *GormStockMovementRepository, key inventory.StockKey, delta int64, movementType inventory.MovementType, at time.Time) {
	t.Helper()
	m, err := inventory.NewStockMovement(key, delta, movementType, "REF", "tester")
	require.NoError(t, err)
	m.OccurredAt = at
	require.NoError(t, repo.Create(context.Background(), m))
}

func TestGormStockMovementRepository_FindByKey(t *testing.T) {
	ctx := context.Background()
	repo := NewGormStockMovementRepository(newSQLiteDatabase(t).DB)
	key := newTestKey()
	base := time.Now().Add(-time.Hour)

	appendMovement(t, repo, key, 10, inventory.MovementTypeReceipt, base)
	appendMovement(t, repo, key, -2, inventory.MovementTypeSale, base.Add(time.Minute))
	appendMovement(t, repo, key, -1, inventory.MovementTypeTransferOut, base.Add(2*time.Minute))
	appendMovement(t, repo, newTestKey(), 4, inventory.MovementTypeReceipt, base)

	movements, err := repo.FindByKey(ctx, key, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, movements, 3)
	assert.Equal(t, inventory.MovementTypeTransferOut, movements[0].MovementType, "newest first")
	assert.Equal(t, int64(10), movements[2].QuantityDelta)

	count, err := repo.CountByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestGormStockMovementRepository_SumByKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewGormStockMovementRepository(newSQLiteDatabase(t).DB)
	now := time.Now()

	productA, productB := uuid.New(), uuid.New()
	branch1, branch2 := uuid.New(), uuid.New()
	a1 := inventory.StockKey{ProductID: productA, BranchID: branch1}
	b2 := inventory.StockKey{ProductID: productB, BranchID: branch2}
	a2 := inventory.StockKey{ProductID: productA, BranchID: branch2}
	b1 := inventory.StockKey{ProductID: productB, BranchID: branch1}

	appendMovement(t, repo, a1, 10, inventory.MovementTypeReceipt, now)
	appendMovement(t, repo, a1, -3, inventory.MovementTypeSale, now)
	appendMovement(t, repo, b2, 7, inventory.MovementTypeTransferIn, now)
	// inside the IN-list cross product but not requested
	appendMovement(t, repo, a2, 99, inventory.MovementTypeReceipt, now)

	sums, err := repo.SumByKeys(ctx, []inventory.StockKey{a1, b2, b1})
	require.NoError(t, err)
	assert.Equal(t, map[inventory.StockKey]int64{a1: 7, b2: 7, b1: 0}, sums)

	empty, err := repo.SumByKeys(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
