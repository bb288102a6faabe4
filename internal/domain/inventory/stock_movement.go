package inventory

import (
	"strings"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
)

// MovementType classifies a signed change to on-hand quantity
type MovementType string

const (
	// MovementTypeReceipt is stock received from a supplier
	MovementTypeReceipt MovementType = "receipt"
	// MovementTypeSale is stock leaving through a sale
	MovementTypeSale MovementType = "sale"
	// MovementTypeTransferOut is stock shipped to another branch
	MovementTypeTransferOut MovementType = "transfer_out"
	// MovementTypeTransferIn is stock arriving from another branch
	MovementTypeTransferIn MovementType = "transfer_in"
	// MovementTypeAdjustment is a stock-take correction in either direction
	MovementTypeAdjustment MovementType = "adjustment"
	// MovementTypeReturn is customer-returned stock
	MovementTypeReturn MovementType = "return"
)

// AllMovementTypes lists every valid movement type
var AllMovementTypes = []MovementType{
	MovementTypeReceipt,
	MovementTypeSale,
	MovementTypeTransferOut,
	MovementTypeTransferIn,
	MovementTypeAdjustment,
	MovementTypeReturn,
}

// ParseMovementType accepts both "transfer-out" and "transfer_out" spellings
func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !t.IsValid() {
		return "", shared.NewDomainError("INVALID_MOVEMENT_TYPE", "Unknown movement type: "+s)
	}
	return t, nil
}

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid returns true if the movement type is known
func (t MovementType) IsValid() bool {
	for _, v := range AllMovementTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsInbound returns true if the type only ever adds stock
func (t MovementType) IsInbound() bool {
	switch t {
	case MovementTypeReceipt, MovementTypeTransferIn, MovementTypeReturn:
		return true
	}
	return false
}

// IsOutbound returns true if the type only ever removes stock
func (t MovementType) IsOutbound() bool {
	switch t {
	case MovementTypeSale, MovementTypeTransferOut:
		return true
	}
	return false
}

// ValidateDelta checks the sign of delta against the movement type.
// Adjustments may go either way; every other type has a fixed sign.
func (t MovementType) ValidateDelta(delta int64) error {
	if !t.IsValid() {
		return shared.NewDomainError("INVALID_MOVEMENT_TYPE", "Unknown movement type: "+string(t))
	}
	if delta == 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Movement quantity cannot be zero")
	}
	if t.IsInbound() && delta < 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Inbound movement must have a positive quantity")
	}
	if t.IsOutbound() && delta > 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Outbound movement must have a negative quantity")
	}
	return nil
}

// StockMovement is one immutable entry in the stock ledger.
// The signed sum of QuantityDelta for a key equals the record's on-hand quantity.
type StockMovement struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	BranchID      uuid.UUID
	QuantityDelta int64
	MovementType  MovementType
	Reference     string
	Actor         string
	OnHandAfter   int64
	OccurredAt    time.Time
}

// NewStockMovement creates a ledger entry after validating its sign
func NewStockMovement(key StockKey, delta int64, movementType MovementType, reference, actor string) (*StockMovement, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := movementType.ValidateDelta(delta); err != nil {
		return nil, err
	}
	if len(reference) > 100 {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Reference cannot exceed 100 characters")
	}

	return &StockMovement{
		ID:            uuid.New(),
		ProductID:     key.ProductID,
		BranchID:      key.BranchID,
		QuantityDelta: delta,
		MovementType:  movementType,
		Reference:     reference,
		Actor:         actor,
		OccurredAt:    time.Now(),
	}, nil
}

// Key returns the (product, branch) key of the movement
func (m *StockMovement) Key() StockKey {
	return StockKey{ProductID: m.ProductID, BranchID: m.BranchID}
}

// IsIncrease returns true if the movement added stock
func (m *StockMovement) IsIncrease() bool {
	return m.QuantityDelta > 0
}
