package inventory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *fixture) reserve(t *testing.T, quantity int64) (*ReservationResponse, error) {
	t.Helper()
	return f.reservations.Reserve(context.Background(), ReserveRequest{
		ProductID: f.key.ProductID,
		BranchID:  f.key.BranchID,
		Quantity:  quantity,
		Reference: "cart",
	})
}

func TestReservationService_CheckoutScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 5)

	first, err := f.reserve(t, 7)
	require.NoError(t, err)
	record := f.store.record(f.key)
	assert.Equal(t, int64(7), record.ReservedQuantity)
	assert.Equal(t, int64(3), record.Available())

	_, err = f.reserve(t, 5)
	assert.True(t, errors.Is(err, shared.ErrInsufficientAvailability))
	assert.Equal(t, int64(7), f.store.record(f.key).ReservedQuantity)

	f.publisher.reset()
	committed, err := f.reservations.Commit(ctx, first.ID, CommitRequest{Reference: "sale-1"})
	require.NoError(t, err)

	record = f.store.record(f.key)
	assert.Equal(t, int64(3), record.OnHandQuantity)
	assert.Zero(t, record.ReservedQuantity)
	assert.Equal(t, "committed", committed.Reservation.Status)
	assert.Equal(t, int64(-7), committed.Movement.QuantityDelta)
	assert.Equal(t, "sale", committed.Movement.MovementType)
	assert.Equal(t, "sale-1", committed.Movement.Reference)
	assert.Equal(t, &committed.Movement.ID, committed.Reservation.MovementID)

	alerts := f.publisher.ofType(inventory.EventTypeLowStockAlert)
	require.Len(t, alerts, 1)
	alert := alerts[0].(*inventory.LowStockAlertEvent)
	assert.Equal(t, int64(3), alert.Available)
	assert.Equal(t, int64(5), alert.Minimum)
	assert.Equal(t, record.OnHandQuantity, ledgerSum(f.store.movementsFor(f.key)))
}

func TestReservationService_ReserveWithoutRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("active branch is declined rather than not found", func(t *testing.T) {
		f := newFixture(t, 0, 0)
		key := inventory.StockKey{ProductID: f.key.ProductID, BranchID: uuid.New()}
		f.branches.On("IsActive", mock.Anything, key.BranchID).Return(true, nil)

		_, err := f.reservations.Reserve(ctx, ReserveRequest{ProductID: key.ProductID, BranchID: key.BranchID, Quantity: 1})

		assert.True(t, errors.Is(err, shared.ErrInsufficientAvailability))
		record := f.store.record(key)
		assert.Equal(t, key.BranchID, record.BranchID)
		assert.Zero(t, record.ReservedQuantity)
	})

	t.Run("inactive branch is not found", func(t *testing.T) {
		f := newFixture(t, 0, 0)
		key := inventory.StockKey{ProductID: f.key.ProductID, BranchID: uuid.New()}
		f.branches.On("IsActive", mock.Anything, key.BranchID).Return(false, nil)

		_, err := f.reservations.Reserve(ctx, ReserveRequest{ProductID: key.ProductID, BranchID: key.BranchID, Quantity: 1})

		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("without a healer the missing record is not found", func(t *testing.T) {
		f := newFixture(t, 0, 0)
		f.reservations.SetRecordHealer(nil)

		_, err := f.reservations.Reserve(ctx, ReserveRequest{ProductID: uuid.New(), BranchID: f.key.BranchID, Quantity: 1})

		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestReservationService_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("produces exactly one movement", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		res, err := f.reserve(t, 4)
		require.NoError(t, err)

		_, err = f.reservations.Commit(ctx, res.ID, CommitRequest{})
		require.NoError(t, err)
		_, err = f.reservations.Commit(ctx, res.ID, CommitRequest{})
		assert.True(t, errors.Is(err, shared.ErrInvalidState))

		movements := f.store.movementsFor(f.key)
		require.Len(t, movements, 2)
		assert.Equal(t, int64(-4), movements[1].QuantityDelta)
		assert.Equal(t, "cart", movements[1].Reference)
	})

	t.Run("commits as transfer out", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		res, err := f.reserve(t, 2)
		require.NoError(t, err)

		resp, err := f.reservations.Commit(ctx, res.ID, CommitRequest{MovementType: "transfer-out"})

		require.NoError(t, err)
		assert.Equal(t, "transfer_out", resp.Movement.MovementType)
	})

	t.Run("rejects inbound movement type", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		res, err := f.reserve(t, 2)
		require.NoError(t, err)

		_, err = f.reservations.Commit(ctx, res.ID, CommitRequest{MovementType: "receipt"})
		assert.Error(t, err)
		assert.Equal(t, inventory.ReservationStatusActive, f.store.reservation(res.ID).Status)
	})

	t.Run("commit after release fails", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		res, err := f.reserve(t, 2)
		require.NoError(t, err)
		_, err = f.reservations.Release(ctx, res.ID)
		require.NoError(t, err)

		_, err = f.reservations.Commit(ctx, res.ID, CommitRequest{})
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		assert.Equal(t, int64(10), f.store.record(f.key).OnHandQuantity)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		_, err := f.reservations.Commit(ctx, uuid.New(), CommitRequest{})
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestReservationService_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("returns quantity and is idempotent", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		res, err := f.reserve(t, 6)
		require.NoError(t, err)

		released, err := f.reservations.Release(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, "released", released.Status)
		assert.Zero(t, f.store.record(f.key).ReservedQuantity)

		again, err := f.reservations.Release(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, "released", again.Status)
		assert.Equal(t, released.ClosedAt, again.ClosedAt)
		assert.Zero(t, f.store.record(f.key).ReservedQuantity)
	})

	t.Run("release after commit is a no-op", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		res, err := f.reserve(t, 6)
		require.NoError(t, err)
		_, err = f.reservations.Commit(ctx, res.ID, CommitRequest{})
		require.NoError(t, err)

		resp, err := f.reservations.Release(ctx, res.ID)

		require.NoError(t, err)
		assert.Equal(t, "committed", resp.Status)
		record := f.store.record(f.key)
		assert.Equal(t, int64(4), record.OnHandQuantity)
		assert.Zero(t, record.ReservedQuantity)
	})
}

func TestReservationService_Expiry(t *testing.T) {
	ctx := context.Background()

	t.Run("sweep expires due reservations", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		due, err := f.reserve(t, 3)
		require.NoError(t, err)
		later, err := f.reservations.Reserve(ctx, ReserveRequest{
			ProductID: f.key.ProductID, BranchID: f.key.BranchID, Quantity: 2, TTLSeconds: 3600,
		})
		require.NoError(t, err)

		f.reservations.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
		stats, err := f.reservations.ExpireDue(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.Found)
		assert.Equal(t, 1, stats.Expired)
		assert.Equal(t, inventory.ReservationStatusExpired, f.store.reservation(due.ID).Status)
		assert.Equal(t, inventory.ReservationStatusActive, f.store.reservation(later.ID).Status)
		assert.Equal(t, int64(2), f.store.record(f.key).ReservedQuantity)
		assert.Len(t, f.publisher.ofType(inventory.EventTypeReservationExpired), 1)

		_, err = f.reservations.Commit(ctx, due.ID, CommitRequest{})
		assert.True(t, errors.Is(err, shared.ErrReservationExpired))

		resp, err := f.reservations.Release(ctx, due.ID)
		require.NoError(t, err)
		assert.Equal(t, "expired", resp.Status)
		assert.Equal(t, int64(2), f.store.record(f.key).ReservedQuantity)

		stats, err = f.reservations.ExpireDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Found)
	})

	t.Run("commit of an unswept due reservation expires it", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		res, err := f.reserve(t, 3)
		require.NoError(t, err)

		f.reservations.now = func() time.Time { return time.Now().Add(time.Hour) }
		_, err = f.reservations.Commit(ctx, res.ID, CommitRequest{Reference: "late-sale"})

		assert.True(t, errors.Is(err, shared.ErrReservationExpired))
		assert.Equal(t, inventory.ReservationStatusExpired, f.store.reservation(res.ID).Status)
		record := f.store.record(f.key)
		assert.Zero(t, record.ReservedQuantity)
		assert.Equal(t, int64(10), record.OnHandQuantity)
		assert.Len(t, f.store.movementsFor(f.key), 1)
	})

	t.Run("lookup expires lazily", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		res, err := f.reserve(t, 3)
		require.NoError(t, err)

		got, err := f.reservations.GetReservation(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, "active", got.Status)

		f.reservations.now = func() time.Time { return time.Now().Add(time.Hour) }
		got, err = f.reservations.GetReservation(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, "expired", got.Status)
		assert.Zero(t, f.store.record(f.key).ReservedQuantity)
	})

	t.Run("rejects ttl above maximum", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		_, err := f.reservations.Reserve(ctx, ReserveRequest{
			ProductID: f.key.ProductID, BranchID: f.key.BranchID, Quantity: 1, TTLSeconds: int64((3 * time.Hour).Seconds()),
		})
		assert.Error(t, err)
	})
}

func TestReservationService_ConcurrentAvailabilityNeverNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved []uuid.UUID
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			switch rng.Intn(4) {
			case 0:
				_, _ = f.apply(t, -int64(rng.Intn(5)+1), inventory.MovementTypeSale)
			case 1:
				_, _ = f.apply(t, int64(rng.Intn(5)+1), inventory.MovementTypeReceipt)
			default:
				res, err := f.reserve(t, int64(rng.Intn(6)+1))
				if err == nil {
					mu.Lock()
					reserved = append(reserved, res.ID)
					mu.Unlock()
					if rng.Intn(2) == 0 {
						_, _ = f.reservations.Release(ctx, res.ID)
					}
				}
			}

			record := f.store.record(f.key)
			assert.GreaterOrEqual(t, record.Available(), int64(0))
			assert.LessOrEqual(t, record.ReservedQuantity, record.OnHandQuantity)
		}(int64(i))
	}
	wg.Wait()

	var active int64
	for _, id := range reserved {
		r := f.store.reservation(id)
		if r.IsActive() {
			active += r.Quantity
		}
	}
	record := f.store.record(f.key)
	assert.Equal(t, active, record.ReservedQuantity)
	assert.GreaterOrEqual(t, record.Available(), int64(0))
	assert.Equal(t, record.OnHandQuantity, ledgerSum(f.store.movementsFor(f.key)))
}
