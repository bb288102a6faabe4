package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey() inventory.StockKey {
	return inventory.StockKey{ProductID: uuid.New(), BranchID: uuid.New()}
}

func TestGormInventoryRecordRepository_EnsureExists(t *testing.T) {
	ctx := context.Background()
	repo := NewGormInventoryRecordRepository(newSQLiteDatabase(t).DB)
	key := newTestKey()

	created, err := repo.EnsureExists(ctx, key)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.EnsureExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, created, "second call must not insert")

	record, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.OnHandQuantity)
	assert.Equal(t, int64(0), record.ReservedQuantity)
	assert.Equal(t, 1, record.Version)
}

func TestGormInventoryRecordRepository_FindByKey_NotFound(t *testing.T) {
	repo := NewGormInventoryRecordRepository(newSQLiteDatabase(t).DB)

	_, err := repo.FindByKey(context.Background(), newTestKey())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormInventoryRecordRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo := NewGormInventoryRecordRepository(newSQLiteDatabase(t).DB)
	key := newTestKey()
	_, err := repo.EnsureExists(ctx, key)
	require.NoError(t, err)

	first, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)
	stale, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)

	_, err = first.ApplyMovement(10, inventory.MovementTypeReceipt, "PO-1", "alice")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, first))

	_, err = stale.ApplyMovement(3, inventory.MovementTypeReceipt, "PO-2", "bob")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(ctx, stale), shared.ErrConcurrencyConflict)

	stored, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.OnHandQuantity)
	assert.Equal(t, 2, stored.Version)
}

func TestGormInventoryRecordRepository_FindAll_KeyOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewGormInventoryRecordRepository(newSQLiteDatabase(t).DB)

	var keys []inventory.StockKey
	for i := 0; i < 5; i++ {
		k := newTestKey()
		keys = append(keys, k)
		_, err := repo.EnsureExists(ctx, k)
		require.NoError(t, err)
	}

	page1, err := repo.FindAll(ctx, shared.Filter{Page: 1, PageSize: 3})
	require.NoError(t, err)
	page2, err := repo.FindAll(ctx, shared.Filter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.Len(t, page2, 2)

	all := append(page1, page2...)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Key().Less(all[i].Key()), "records must be in key order")
	}

	atBranch, err := repo.FindByBranch(ctx, keys[0].BranchID, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, atBranch, 1)
	assert.Equal(t, keys[0], atBranch[0].Key())
}

func TestGormInventoryRecordRepository_FindByKeyForUpdate(t *testing.T) {
	db, mock := newMockDatabase(t)
	repo := NewGormInventoryRecordRepository(db.DB)
	key := newTestKey()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at", "version", "product_id", "branch_id", "on_hand_quantity", "reserved_quantity"}).
		AddRow(uuid.New(), now, now, 3, key.ProductID, key.BranchID, 12, 4)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "inventory_records" WHERE product_id = $1 AND branch_id = $2`) + `.*FOR UPDATE`).
		WithArgs(key.ProductID, key.BranchID, 1).
		WillReturnRows(rows)

	record, err := repo.FindByKeyForUpdate(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(12), record.OnHandQuantity)
	assert.Equal(t, int64(8), record.Available())
	assert.Equal(t, 3, record.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormInventoryRecordRepository_Save_VersionGuard(t *testing.T) {
	db, mock := newMockDatabase(t)
	repo := NewGormInventoryRecordRepository(db.DB)

	record, err := inventory.NewInventoryRecord(uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = record.ApplyMovement(5, inventory.MovementTypeReceipt, "", "")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "inventory_records" SET`) + `.*WHERE id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Save(context.Background(), record), shared.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
