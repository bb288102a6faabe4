package integration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_MovementsTransfersAndReconciliation(t *testing.T) {
	tdb := NewTestDB(t)
	app := NewTestApp(t, tdb)
	ctx := context.Background()

	north := app.CreateBranch(t, "NORTH")
	south := app.CreateBranch(t, "SOUTH")
	product := app.CreateProduct(t, "SKU-LEDGER", 0)

	// provisioning created zero records at both branches
	assert.Equal(t, int64(0), app.Availability(t, product, north).OnHand)
	assert.Equal(t, int64(0), app.Availability(t, product, south).OnHand)

	app.Receive(t, product, north, 40)

	_, err := app.Inventory.ApplyMovement(ctx, inventoryapp.ApplyMovementRequest{
		ProductID:    product,
		BranchID:     north,
		Delta:        -50,
		MovementType: string(inventory.MovementTypeSale),
	})
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))

	transfer, err := app.Inventory.Transfer(ctx, inventoryapp.TransferRequest{
		ProductID:    product,
		FromBranchID: north,
		ToBranchID:   south,
		Quantity:     15,
		Actor:        "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-15), transfer.Outbound.QuantityDelta)
	assert.Equal(t, int64(15), transfer.Inbound.QuantityDelta)
	assert.Equal(t, transfer.Outbound.Reference, transfer.Inbound.Reference)

	assert.Equal(t, int64(25), app.Availability(t, product, north).OnHand)
	assert.Equal(t, int64(15), app.Availability(t, product, south).OnHand)

	page, err := app.Inventory.ListMovements(ctx, product, north, shared.Filter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	report, err := app.Reconciliation.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.CheckedRecords)
	assert.False(t, report.HasMismatches())

	// drift the record behind the ledger's back
	require.NoError(t, tdb.DB.Exec(
		"UPDATE inventory_records SET on_hand_quantity = on_hand_quantity + 3 WHERE product_id = ? AND branch_id = ?",
		product, south,
	).Error)

	report, err = app.Reconciliation.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, south, report.Mismatches[0].BranchID)
	assert.Len(t, app.Events.OfType(inventory.EventTypeReconciliationMismatch), 1)
}

func TestReservations_ConcurrentReservesNeverOversell(t *testing.T) {
	tdb := NewTestDB(t)
	app := NewTestApp(t, tdb)
	ctx := context.Background()

	branch := app.CreateBranch(t, "RUSH")
	product := app.CreateProduct(t, "SKU-HOT", 0)
	app.Receive(t, product, branch, 10)

	const workers = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		declined  atomic.Int64
		mu        sync.Mutex
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := app.Reservations.Reserve(ctx, inventoryapp.ReserveRequest{
				ProductID: product,
				BranchID:  branch,
				Quantity:  1,
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, shared.ErrInsufficientAvailability):
				declined.Add(1)
			default:
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, int64(10), succeeded.Load())
	assert.Equal(t, int64(10), declined.Load())

	av := app.Availability(t, product, branch)
	assert.Equal(t, int64(10), av.OnHand)
	assert.Equal(t, int64(10), av.Reserved)
	assert.Equal(t, int64(0), av.Available)
}

func TestReservations_Lifecycle(t *testing.T) {
	tdb := NewTestDB(t)
	app := NewTestApp(t, tdb)
	ctx := context.Background()

	branch := app.CreateBranch(t, "LIFE")
	product := app.CreateProduct(t, "SKU-LIFE", 0)
	app.Receive(t, product, branch, 10)

	t.Run("commit turns the hold into a sale", func(t *testing.T) {
		res, err := app.Reservations.Reserve(ctx, inventoryapp.ReserveRequest{
			ProductID: product, BranchID: branch, Quantity: 3, Reference: "CART-1",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), app.Availability(t, product, branch).Available)

		committed, err := app.Reservations.Commit(ctx, res.ID, inventoryapp.CommitRequest{Actor: "checkout"})
		require.NoError(t, err)
		assert.Equal(t, string(inventory.ReservationStatusCommitted), committed.Reservation.Status)
		assert.Equal(t, int64(-3), committed.Movement.QuantityDelta)
		assert.Equal(t, string(inventory.MovementTypeSale), committed.Movement.MovementType)

		av := app.Availability(t, product, branch)
		assert.Equal(t, int64(7), av.OnHand)
		assert.Equal(t, int64(0), av.Reserved)
	})

	t.Run("release returns the hold and repeats harmlessly", func(t *testing.T) {
		res, err := app.Reservations.Reserve(ctx, inventoryapp.ReserveRequest{
			ProductID: product, BranchID: branch, Quantity: 2,
		})
		require.NoError(t, err)

		released, err := app.Reservations.Release(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, string(inventory.ReservationStatusReleased), released.Status)

		_, err = app.Reservations.Release(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), app.Availability(t, product, branch).Reserved)
	})

	t.Run("expired holds are swept and cannot be committed", func(t *testing.T) {
		res, err := app.Reservations.Reserve(ctx, inventoryapp.ReserveRequest{
			ProductID: product, BranchID: branch, Quantity: 4, TTLSeconds: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), app.Availability(t, product, branch).Reserved)

		time.Sleep(1100 * time.Millisecond)

		stats, err := app.Reservations.ExpireDue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Expired)
		assert.Equal(t, int64(0), app.Availability(t, product, branch).Reserved)
		assert.Len(t, app.Events.OfType(inventory.EventTypeReservationExpired), 1)

		_, err = app.Reservations.Commit(ctx, res.ID, inventoryapp.CommitRequest{})
		assert.True(t, errors.Is(err, shared.ErrReservationExpired))
	})

	report, err := app.Reconciliation.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, report.HasMismatches())
}

func TestLowStock_AlertsOncePerCrossing(t *testing.T) {
	tdb := NewTestDB(t)
	app := NewTestApp(t, tdb)
	ctx := context.Background()

	branch := app.CreateBranch(t, "LOW")
	product := app.CreateProduct(t, "SKU-LOW", 5)
	app.Receive(t, product, branch, 20)

	sell := func(qty int64) {
		t.Helper()
		_, err := app.Inventory.ApplyMovement(ctx, inventoryapp.ApplyMovementRequest{
			ProductID:    product,
			BranchID:     branch,
			Delta:        -qty,
			MovementType: string(inventory.MovementTypeSale),
		})
		require.NoError(t, err)
	}

	sell(14) // 6 left
	assert.Empty(t, app.Events.OfType(inventory.EventTypeLowStockAlert))

	sell(1) // 5 left, crosses down
	sell(2) // 3 left, still low
	alerts := app.Events.OfType(inventory.EventTypeLowStockAlert)
	require.Len(t, alerts, 1)
	alert := alerts[0].(*inventory.LowStockAlertEvent)
	assert.Equal(t, int64(5), alert.Available)
	assert.Equal(t, int64(5), alert.Minimum)

	items, err := app.Inventory.ListLowStock(ctx, branch)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, product, items[0].ProductID)

	app.Receive(t, product, branch, 10) // 13, re-arms
	sell(9)                             // 4, crosses down again
	assert.Len(t, app.Events.OfType(inventory.EventTypeLowStockAlert), 2)
}
