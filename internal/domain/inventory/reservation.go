package inventory

import (
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
)

// ReservationStatus is the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// IsValid returns true if the status is known
func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationStatusActive, ReservationStatusCommitted, ReservationStatusReleased, ReservationStatusExpired:
		return true
	}
	return false
}

// IsTerminal returns true for committed, released and expired
func (s ReservationStatus) IsTerminal() bool {
	return s.IsValid() && s != ReservationStatusActive
}

// Reservation is a time-bounded hold on quantity at one branch.
// Transitions: active -> committed | released | expired. Terminal states are final.
type Reservation struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	BranchID   uuid.UUID
	Quantity   int64
	Status     ReservationStatus
	Reference  string
	MovementID *uuid.UUID
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ClosedAt   *time.Time
}

// NewReservation creates an active reservation expiring ttl from now
func NewReservation(key StockKey, quantity int64, ttl time.Duration, reference string) (*Reservation, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Reservation quantity must be positive")
	}
	if ttl <= 0 {
		return nil, shared.NewDomainError("INVALID_TTL", "Reservation TTL must be positive")
	}

	now := time.Now()
	return &Reservation{
		ID:        uuid.New(),
		ProductID: key.ProductID,
		BranchID:  key.BranchID,
		Quantity:  quantity,
		Status:    ReservationStatusActive,
		Reference: reference,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Key returns the (product, branch) key the reservation holds stock on
func (r *Reservation) Key() StockKey {
	return StockKey{ProductID: r.ProductID, BranchID: r.BranchID}
}

// IsActive returns true if the reservation still holds stock
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// IsDue returns true if the reservation is active but past its expiry at now
func (r *Reservation) IsDue(now time.Time) bool {
	return r.IsActive() && !now.Before(r.ExpiresAt)
}

// Commit marks the reservation consumed by the given ledger entry
func (r *Reservation) Commit(movementID uuid.UUID, reference string, now time.Time) error {
	switch {
	case r.Status == ReservationStatusExpired:
		return shared.NewDomainError("RESERVATION_EXPIRED", "Reservation "+r.ID.String()+" has expired")
	case !r.IsActive():
		return shared.NewDomainError("INVALID_STATE", "Reservation "+r.ID.String()+" is already "+string(r.Status))
	case r.IsDue(now):
		return shared.NewDomainError("RESERVATION_EXPIRED", "Reservation "+r.ID.String()+" has expired")
	}

	r.Status = ReservationStatusCommitted
	r.MovementID = &movementID
	if reference != "" {
		r.Reference = reference
	}
	r.ClosedAt = &now
	return nil
}

// Release marks an active reservation released. It reports whether the
// status changed; releasing a closed reservation is a no-op.
func (r *Reservation) Release(now time.Time) bool {
	return r.close(ReservationStatusReleased, now)
}

// Expire marks an active reservation expired. It reports whether the status changed.
func (r *Reservation) Expire(now time.Time) bool {
	return r.close(ReservationStatusExpired, now)
}

func (r *Reservation) close(status ReservationStatus, now time.Time) bool {
	if !r.IsActive() {
		return false
	}
	r.Status = status
	r.ClosedAt = &now
	return true
}
