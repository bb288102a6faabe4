package inventory

import (
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AvailabilityResponse is the stock position of one product at one branch
type AvailabilityResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	BranchID  uuid.UUID `json:"branch_id"`
	OnHand    int64     `json:"on_hand"`
	Reserved  int64     `json:"reserved"`
	Available int64     `json:"available"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyMovementRequest records a signed change to on-hand quantity
type ApplyMovementRequest struct {
	ProductID    uuid.UUID `json:"product_id" binding:"required"`
	BranchID     uuid.UUID `json:"branch_id" binding:"required"`
	Delta        int64     `json:"delta" binding:"required"`
	MovementType string    `json:"movement_type" binding:"required"`
	Reference    string    `json:"reference" binding:"max=100"`
	Actor        string    `json:"actor" binding:"max=100"`
}

// EnsureRecordRequest asks for a zero record to exist
type EnsureRecordRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	BranchID  uuid.UUID `json:"branch_id" binding:"required"`
}

// TransferRequest moves stock between two branches
type TransferRequest struct {
	ProductID    uuid.UUID `json:"product_id" binding:"required"`
	FromBranchID uuid.UUID `json:"from_branch_id" binding:"required"`
	ToBranchID   uuid.UUID `json:"to_branch_id" binding:"required"`
	Quantity     int64     `json:"quantity" binding:"required,min=1"`
	Reference    string    `json:"reference" binding:"max=100"`
	Actor        string    `json:"actor" binding:"max=100"`
}

// MovementResponse is a ledger entry in API responses
type MovementResponse struct {
	ID            uuid.UUID `json:"id"`
	ProductID     uuid.UUID `json:"product_id"`
	BranchID      uuid.UUID `json:"branch_id"`
	QuantityDelta int64     `json:"quantity_delta"`
	MovementType  string    `json:"movement_type"`
	Reference     string    `json:"reference,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	OnHandAfter   int64     `json:"on_hand_after"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// TransferResponse holds both legs of a transfer
type TransferResponse struct {
	Reference string               `json:"reference"`
	Outbound  MovementResponse     `json:"outbound"`
	Inbound   MovementResponse     `json:"inbound"`
	From      AvailabilityResponse `json:"from"`
	To        AvailabilityResponse `json:"to"`
}

// EnsureRecordsResult counts the outcome of a fan-out
type EnsureRecordsResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

// LowStockItem is one record at or below its product minimum
type LowStockItem struct {
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	BranchID  uuid.UUID `json:"branch_id"`
	OnHand    int64     `json:"on_hand"`
	Reserved  int64     `json:"reserved"`
	Available int64     `json:"available"`
	Minimum   int64     `json:"minimum"`
}

// ValuationLine is the value of one product at a branch
type ValuationLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	SKU       string          `json:"sku"`
	OnHand    int64           `json:"on_hand"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Value     decimal.Decimal `json:"value"`
}

// ValuationResponse is the stock value of a branch at cost
type ValuationResponse struct {
	BranchID   uuid.UUID       `json:"branch_id"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalUnits int64           `json:"total_units"`
	Lines      []ValuationLine `json:"lines"`
}

// ReserveRequest asks for a hold on quantity
type ReserveRequest struct {
	ProductID  uuid.UUID `json:"product_id" binding:"required"`
	BranchID   uuid.UUID `json:"branch_id" binding:"required"`
	Quantity   int64     `json:"quantity" binding:"required,min=1"`
	TTLSeconds int64     `json:"ttl_seconds" binding:"min=0"`
	Reference  string    `json:"reference" binding:"max=100"`
}

// CommitRequest converts a reservation into an outbound movement
type CommitRequest struct {
	Reference    string `json:"reference" binding:"max=100"`
	MovementType string `json:"movement_type"`
	Actor        string `json:"actor" binding:"max=100"`
}

// ReservationResponse is a reservation in API responses
type ReservationResponse struct {
	ID         uuid.UUID  `json:"id"`
	ProductID  uuid.UUID  `json:"product_id"`
	BranchID   uuid.UUID  `json:"branch_id"`
	Quantity   int64      `json:"quantity"`
	Status     string     `json:"status"`
	Reference  string     `json:"reference,omitempty"`
	MovementID *uuid.UUID `json:"movement_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// CommitResponse holds the committed reservation and its sale movement
type CommitResponse struct {
	Reservation ReservationResponse `json:"reservation"`
	Movement    MovementResponse    `json:"movement"`
}

// ExpirySweepStats summarises one expiry sweep
type ExpirySweepStats struct {
	Found       int       `json:"found"`
	Expired     int       `json:"expired"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	ProcessedAt time.Time `json:"processed_at"`
}

// MismatchItem is one record whose ledger does not add up
type MismatchItem struct {
	ProductID  uuid.UUID `json:"product_id"`
	BranchID   uuid.UUID `json:"branch_id"`
	OnHand     int64     `json:"on_hand"`
	LedgerSum  int64     `json:"ledger_sum"`
	Difference int64     `json:"difference"`
}

// ReconciliationReport is the outcome of one ledger check
type ReconciliationReport struct {
	CheckedRecords int            `json:"checked_records"`
	Mismatches     []MismatchItem `json:"mismatches"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// HasMismatches reports whether any record diverged from its ledger
func (r *ReconciliationReport) HasMismatches() bool {
	return len(r.Mismatches) > 0
}

// ToAvailabilityResponse converts a record
func ToAvailabilityResponse(r *inventory.InventoryRecord) AvailabilityResponse {
	return AvailabilityResponse{
		ProductID: r.ProductID,
		BranchID:  r.BranchID,
		OnHand:    r.OnHandQuantity,
		Reserved:  r.ReservedQuantity,
		Available: r.Available(),
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	}
}

// ToMovementResponse converts a ledger entry
func ToMovementResponse(m *inventory.StockMovement) MovementResponse {
	return MovementResponse{
		ID:            m.ID,
		ProductID:     m.ProductID,
		BranchID:      m.BranchID,
		QuantityDelta: m.QuantityDelta,
		MovementType:  m.MovementType.String(),
		Reference:     m.Reference,
		Actor:         m.Actor,
		OnHandAfter:   m.OnHandAfter,
		OccurredAt:    m.OccurredAt,
	}
}

// ToMovementResponses converts a slice of ledger entries
func ToMovementResponses(movements []inventory.StockMovement) []MovementResponse {
	out := make([]MovementResponse, len(movements))
	for i := range movements {
		out[i] = ToMovementResponse(&movements[i])
	}
	return out
}

// ToReservationResponse converts a reservation
func ToReservationResponse(r *inventory.Reservation) ReservationResponse {
	return ReservationResponse{
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
