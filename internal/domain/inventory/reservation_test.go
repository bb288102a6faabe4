package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReservation(t *testing.T, ttl time.Duration) *Reservation {
	t.Helper()
	r, err := NewReservation(StockKey{ProductID: uuid.New(), BranchID: uuid.New()}, 7, ttl, "cart-1")
	require.NoError(t, err)
	return r
}

func TestNewReservation(t *testing.T) {
	key := StockKey{ProductID: uuid.New(), BranchID: uuid.New()}

	t.Run("creates active reservation", func(t *testing.T) {
		r, err := NewReservation(key, 3, 10*time.Minute, "cart-1")
		require.NoError(t, err)
		assert.Equal(t, ReservationStatusActive, r.Status)
		assert.Equal(t, key, r.Key())
		assert.WithinDuration(t, r.CreatedAt.Add(10*time.Minute), r.ExpiresAt, time.Millisecond)
		assert.Nil(t, r.ClosedAt)
	})

	t.Run("validates input", func(t *testing.T) {
		_, err := NewReservation(key, 0, time.Minute, "")
		assert.Error(t, err)
		_, err = NewReservation(key, 1, 0, "")
		assert.Error(t, err)
		_, err = NewReservation(StockKey{}, 1, time.Minute, "")
		assert.Error(t, err)
	})
}

func TestReservation_StateMachine(t *testing.T) {
	now := time.Now()

	t.Run("commit closes active reservation", func(t *testing.T) {
		r := newTestReservation(t, time.Minute)
		movementID := uuid.New()

		require.NoError(t, r.Commit(movementID, "sale-1", now))
		assert.Equal(t, ReservationStatusCommitted, r.Status)
		assert.Equal(t, &movementID, r.MovementID)
		assert.Equal(t, "sale-1", r.Reference)
		assert.NotNil(t, r.ClosedAt)
	})

	t.Run("second commit fails", func(t *testing.T) {
		r := newTestReservation(t, time.Minute)
		require.NoError(t, r.Commit(uuid.New(), "", now))

		err := r.Commit(uuid.New(), "", now)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})

	t.Run("commit past expiry fails", func(t *testing.T) {
		r := newTestReservation(t, time.Minute)

		err := r.Commit(uuid.New(), "", now.Add(2*time.Minute))
		assert.True(t, errors.Is(err, shared.ErrReservationExpired))
		assert.Equal(t, ReservationStatusActive, r.Status)
	})

	t.Run("commit after expiry sweep fails with expired", func(t *testing.T) {
		r := newTestReservation(t, time.Minute)
		require.True(t, r.Expire(now))

		err := r.Commit(uuid.New(), "", now)
		assert.True(t, errors.Is(err, shared.ErrReservationExpired))
	})

	t.Run("release is idempotent", func(t *testing.T) {
		r := newTestReservation(t, time.Minute)

		assert.True(t, r.Release(now))
		closedAt := r.ClosedAt
		assert.False(t, r.Release(now.Add(time.Second)))
		assert.False(t, r.Expire(now.Add(time.Second)))
		assert.Equal(t, ReservationStatusReleased, r.Status)
		assert.Equal(t, closedAt, r.ClosedAt)
	})

	t.Run("terminal states never transition", func(t *testing.T) {
		for _, status := range []ReservationStatus{ReservationStatusCommitted, ReservationStatusReleased, ReservationStatusExpired} {
			r := newTestReservation(t, time.Minute)
			r.Status = status

			assert.False(t, r.Release(now))
			assert.False(t, r.Expire(now))
			assert.Error(t, r.Commit(uuid.New(), "", now))
			assert.Equal(t, status, r.Status)
			assert.True(t, status.IsTerminal())
		}
	})
}

func TestReservation_IsDue(t *testing.T) {
	r := newTestReservation(t, time.Minute)

	assert.False(t, r.IsDue(r.CreatedAt))
	assert.True(t, r.IsDue(r.ExpiresAt))
	r.Release(r.ExpiresAt)
	assert.False(t, r.IsDue(r.ExpiresAt.Add(time.Hour)))
}
