package inventory

import (
	"fmt"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
)

// InventoryRecord holds the stock of one product at one branch.
// It is the aggregate root for stock operations; the key is ProductID + BranchID.
// Invariant: 0 <= ReservedQuantity <= OnHandQuantity.
type InventoryRecord struct {
	shared.BaseAggregateRoot
	ProductID        uuid.UUID
	BranchID         uuid.UUID
	OnHandQuantity   int64
	ReservedQuantity int64
}

// NewInventoryRecord creates a zero-quantity record for a product at a branch
func NewInventoryRecord(productID, branchID uuid.UUID) (*InventoryRecord, error) {
	key, err := NewStockKey(productID, branchID)
	if err != nil {
		return nil, err
	}

	return &InventoryRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         key.ProductID,
		BranchID:          key.BranchID,
	}, nil
}

// Key returns the (product, branch) key
func (r *InventoryRecord) Key() StockKey {
	return StockKey{ProductID: r.ProductID, BranchID: r.BranchID}
}

// Available returns on-hand minus reserved
func (r *InventoryRecord) Available() int64 {
	return r.OnHandQuantity - r.ReservedQuantity
}

// ApplyMovement changes on-hand by delta and returns the ledger entry to append.
// A decrease may not take on-hand below the reserved quantity.
func (r *InventoryRecord) ApplyMovement(delta int64, movementType MovementType, reference, actor string) (*StockMovement, error) {
	movement, err := NewStockMovement(r.Key(), delta, movementType, reference, actor)
	if err != nil {
		return nil, err
	}

	if delta < 0 && r.OnHandQuantity+delta < r.ReservedQuantity {
		return nil, shared.NewDomainError("INSUFFICIENT_STOCK",
			fmt.Sprintf("Insufficient stock: on hand %d, reserved %d, requested %d", r.OnHandQuantity, r.ReservedQuantity, -delta))
	}

	r.OnHandQuantity += delta
	movement.OnHandAfter = r.OnHandQuantity
	r.IncrementVersion()
	r.AddDomainEvent(NewInventoryChangedEvent(r, delta, movementType))

	return movement, nil
}

// Reserve moves quantity from available into reserved
func (r *InventoryRecord) Reserve(quantity int64) error {
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Reservation quantity must be positive")
	}
	if r.Available() < quantity {
		return shared.NewDomainError("INSUFFICIENT_AVAILABILITY",
			fmt.Sprintf("Insufficient availability: available %d, requested %d", r.Available(), quantity))
	}

	r.ReservedQuantity += quantity
	r.IncrementVersion()
	r.AddDomainEvent(NewInventoryChangedEvent(r, 0, ""))

	return nil
}

// ReleaseReserved returns a held quantity to the available pool
func (r *InventoryRecord) ReleaseReserved(quantity int64) error {
	if err := r.releaseReserved(quantity); err != nil {
		return err
	}
	r.IncrementVersion()
	r.AddDomainEvent(NewInventoryChangedEvent(r, 0, ""))
	return nil
}

// ConsumeReserved turns a held quantity into an outbound movement.
// Reserved and on-hand both drop by quantity; available is unchanged.
func (r *InventoryRecord) ConsumeReserved(quantity int64, movementType MovementType, reference, actor string) (*StockMovement, error) {
	if !movementType.IsOutbound() {
		return nil, shared.NewDomainError("INVALID_MOVEMENT_TYPE", "Reserved stock can only leave through an outbound movement")
	}
	if err := r.releaseReserved(quantity); err != nil {
		return nil, err
	}

	movement, err := r.ApplyMovement(-quantity, movementType, reference, actor)
	if err != nil {
		r.ReservedQuantity += quantity
		return nil, err
	}
	return movement, nil
}

func (r *InventoryRecord) releaseReserved(quantity int64) error {
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Release quantity must be positive")
	}
	if r.ReservedQuantity < quantity {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot release %d: only %d reserved", quantity, r.ReservedQuantity))
	}
	r.ReservedQuantity -= quantity
	return nil
}
