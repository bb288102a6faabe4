package models

import (
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/google/uuid"
)

// InventoryRecordModel is the persistence model for the InventoryRecord aggregate root.
type InventoryRecordModel struct {
	AggregateModel
	ProductID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_records_key,priority:2"`
	BranchID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_records_key,priority:1"`
	OnHandQuantity   int64     `gorm:"not null;default:0;check:chk_inventory_records_on_hand,on_hand_quantity >= 0"`
	ReservedQuantity int64     `gorm:"not null;default:0;check:chk_inventory_records_reserved,reserved_quantity >= 0 AND reserved_quantity <= on_hand_quantity"`
}

// TableName returns the table name for GORM
func (InventoryRecordModel) TableName() string {
	return "inventory_records"
}

// ToDomain converts the persistence model to a domain InventoryRecord.
func (m *InventoryRecordModel) ToDomain() *inventory.InventoryRecord {
	return &inventory.InventoryRecord{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		ProductID:         m.ProductID,
		BranchID:          m.BranchID,
		OnHandQuantity:    m.OnHandQuantity,
		ReservedQuantity:  m.ReservedQuantity,
	}
}

// InventoryRecordModelFromDomain creates a persistence model from a domain InventoryRecord.
func InventoryRecordModelFromDomain(r *inventory.InventoryRecord) *InventoryRecordModel {
	m := &InventoryRecordModel{
		ProductID:        r.ProductID,
		BranchID:         r.BranchID,
		OnHandQuantity:   r.OnHandQuantity,
		ReservedQuantity: r.ReservedQuantity,
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return m
}

// StockMovementModel is the persistence model for one ledger entry. Rows are never updated.
type StockMovementModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID     uuid.UUID `gorm:"type:uuid;not null;index:idx_stock_movements_key,priority:2"`
	BranchID      uuid.UUID `gorm:"type:uuid;not null;index:idx_stock_movements_key,priority:1"`
	QuantityDelta int64     `gorm:"not null;check:chk_stock_movements_delta,quantity_delta <> 0"`
	MovementType  string    `gorm:"type:varchar(20);not null"`
	Reference     string    `gorm:"type:varchar(100)"`
	Actor         string    `gorm:"type:varchar(100)"`
	OnHandAfter   int64     `gorm:"not null"`
	OccurredAt    time.Time `gorm:"not null;index:idx_stock_movements_key,priority:3"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the persistence model to a domain StockMovement.
func (m *StockMovementModel) ToDomain() *inventory.StockMovement {
	return &inventory.StockMovement{
		ID:            m.ID,
		ProductID:     m.ProductID,
		BranchID:      m.BranchID,
		QuantityDelta: m.QuantityDelta,
		MovementType:  inventory.MovementType(m.MovementType),
		Reference:     m.Reference,
		Actor:         m.Actor,
		OnHandAfter:   m.OnHandAfter,
		OccurredAt:    m.OccurredAt,
	}
}

// StockMovementModelFromDomain creates a persistence model from a domain StockMovement.
func StockMovementModelFromDomain(s *inventory.StockMovement) *StockMovementModel {
	return &StockMovementModel{
		ID:            s.ID,
		ProductID:     s.ProductID,
		BranchID:      s.BranchID,
		QuantityDelta: s.QuantityDelta,
		MovementType:  s.MovementType.String(),
		Reference:     s.Reference,
		Actor:         s.Actor,
		OnHandAfter:   s.OnHandAfter,
		OccurredAt:    s.OccurredAt,
	}
}

// ReservationModel is the persistence model for a Reservation.
type ReservationModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProductID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_reservations_key,priority:2"`
	BranchID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_reservations_key,priority:1"`
	Quantity   int64      `gorm:"not null;check:chk_reservations_quantity,quantity > 0"`
	Status     string     `gorm:"type:varchar(20);not null;index:idx_reservations_due,priority:1"`
	Reference  string     `gorm:"type:varchar(100)"`
	MovementID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt  time.Time  `gorm:"not null"`
	ExpiresAt  time.Time  `gorm:"not null;index:idx_reservations_due,priority:2"`
	ClosedAt   *time.Time
}

// TableName returns the table name for GORM
func (ReservationModel) TableName() string {
	return "reservations"
}

// ToDomain converts the persistence model to a domain Reservation.
func (m *ReservationModel) ToDomain() *inventory.Reservation {
	return &inventory.Reservation{
		ID:         m.ID,
		ProductID:  m.ProductID,
		BranchID:   m.BranchID,
		Quantity:   m.Quantity,
		Status:     inventory.ReservationStatus(m.Status),
		Reference:  m.Reference,
		MovementID: m.MovementID,
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
		ClosedAt:   m.ClosedAt,
	}
}

// ReservationModelFromDomain creates a persistence model from a domain Reservation.
func ReservationModelFromDomain(r *inventory.Reservation) *ReservationModel {
	return &ReservationModel{
		ID:         r.ID,
		ProductID:  r.ProductID,
		BranchID:   r.BranchID,
		Quantity:   r.Quantity,
		Status:     string(r.Status),
		Reference:  r.Reference,
		MovementID: r.MovementID,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		ClosedAt:   r.ClosedAt,
	}
}
