package inventory

import (
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constants
const (
	AggregateTypeInventoryRecord = "InventoryRecord"
	AggregateTypeReservation     = "Reservation"
)

// Event type constants
const (
	EventTypeInventoryChanged       = "InventoryChanged"
	EventTypeLowStockAlert          = "LowStockAlert"
	EventTypeReservationExpired     = "ReservationExpired"
	EventTypeReconciliationMismatch = "ReconciliationMismatch"
)

// BranchScopedEvent is an event addressed to the subscribers of one branch
type BranchScopedEvent interface {
	shared.DomainEvent
	BranchScope() uuid.UUID
}

// InventoryChangedEvent is raised whenever on-hand or reserved changes
type InventoryChangedEvent struct {
	shared.BaseDomainEvent
	ProductID    uuid.UUID    `json:"product_id"`
	BranchID     uuid.UUID    `json:"branch_id"`
	OnHand       int64        `json:"on_hand"`
	Reserved     int64        `json:"reserved"`
	Available    int64        `json:"available"`
	Delta        int64        `json:"delta,omitempty"`
	MovementType MovementType `json:"movement_type,omitempty"`
}

// NewInventoryChangedEvent snapshots the record after a change
func NewInventoryChangedEvent(r *InventoryRecord, delta int64, movementType MovementType) *InventoryChangedEvent {
	return &InventoryChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInventoryChanged, AggregateTypeInventoryRecord, r.ID),
		ProductID:       r.ProductID,
		BranchID:        r.BranchID,
		OnHand:          r.OnHandQuantity,
		Reserved:        r.ReservedQuantity,
		Available:       r.Available(),
		Delta:           delta,
		MovementType:    movementType,
	}
}

// EventType returns the event type name
func (e *InventoryChangedEvent) EventType() string {
	return EventTypeInventoryChanged
}

// BranchScope returns the branch whose subscribers receive the event
func (e *InventoryChangedEvent) BranchScope() uuid.UUID {
	return e.BranchID
}

// LowStockAlertEvent is raised when availability crosses down to the minimum
type LowStockAlertEvent struct {
	shared.BaseDomainEvent
	ProductID uuid.UUID `json:"product_id"`
	BranchID  uuid.UUID `json:"branch_id"`
	Available int64     `json:"available"`
	Minimum   int64     `json:"minimum"`
}

// NewLowStockAlertEvent creates a new LowStockAlertEvent
func NewLowStockAlertEvent(recordID uuid.UUID, key StockKey, available, minimum int64) *LowStockAlertEvent {
	return &LowStockAlertEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLowStockAlert, AggregateTypeInventoryRecord, recordID),
		ProductID:       key.ProductID,
		BranchID:        key.BranchID,
		Available:       available,
		Minimum:         minimum,
	}
}

// EventType returns the event type name
func (e *LowStockAlertEvent) EventType() string {
	return EventTypeLowStockAlert
}

// BranchScope returns the branch whose subscribers receive the event
func (e *LowStockAlertEvent) BranchScope() uuid.UUID {
	return e.BranchID
}

// ReservationExpiredEvent is raised when a hold lapses without commit or release
type ReservationExpiredEvent struct {
	shared.BaseDomainEvent
	ReservationID uuid.UUID `json:"reservation_id"`
	ProductID     uuid.UUID `json:"product_id"`
	BranchID      uuid.UUID `json:"branch_id"`
	Quantity      int64     `json:"quantity"`
}

// NewReservationExpiredEvent creates a new ReservationExpiredEvent
func NewReservationExpiredEvent(r *Reservation) *ReservationExpiredEvent {
	return &ReservationExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationExpired, AggregateTypeReservation, r.ID),
		ReservationID:   r.ID,
		ProductID:       r.ProductID,
		BranchID:        r.BranchID,
		Quantity:        r.Quantity,
	}
}

// EventType returns the event type name
func (e *ReservationExpiredEvent) EventType() string {
	return EventTypeReservationExpired
}

// ReconciliationMismatchEvent reports a record whose on-hand differs from its ledger
type ReconciliationMismatchEvent struct {
	shared.BaseDomainEvent
	ProductID  uuid.UUID `json:"product_id"`
	BranchID   uuid.UUID `json:"branch_id"`
	OnHand     int64     `json:"on_hand"`
	LedgerSum  int64     `json:"ledger_sum"`
	Difference int64     `json:"difference"`
}

// NewReconciliationMismatchEvent creates a new ReconciliationMismatchEvent
func NewReconciliationMismatchEvent(recordID uuid.UUID, key StockKey, onHand, ledgerSum int64) *ReconciliationMismatchEvent {
	return &ReconciliationMismatchEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReconciliationMismatch, AggregateTypeInventoryRecord, recordID),
		ProductID:       key.ProductID,
		BranchID:        key.BranchID,
		OnHand:          onHand,
		LedgerSum:       ledgerSum,
		Difference:      onHand - ledgerSum,
	}
}

// EventType returns the event type name
func (e *ReconciliationMismatchEvent) EventType() string {
	return EventTypeReconciliationMismatch
}
