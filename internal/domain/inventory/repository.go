package inventory

import (
	"context"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryRecordRepository defines persistence for inventory records.
// Records are never deleted.
type InventoryRecordRepository interface {
	// FindByKey finds the record for a product at a branch
	FindByKey(ctx context.Context, key StockKey) (*InventoryRecord, error)

	// FindByKeyForUpdate finds the record and holds a row lock until the transaction ends
	FindByKeyForUpdate(ctx context.Context, key StockKey) (*InventoryRecord, error)

	// FindByBranch lists records at a branch
	FindByBranch(ctx context.Context, branchID uuid.UUID, filter shared.Filter) ([]InventoryRecord, error)

	// FindAll pages through every record, ordered by key
	FindAll(ctx context.Context, filter shared.Filter) ([]InventoryRecord, error)

	// EnsureExists inserts a zero record unless one exists and reports whether it inserted
	EnsureExists(ctx context.Context, key StockKey) (bool, error)

	// Save updates quantities, failing with ErrConcurrencyConflict on a stale version
	Save(ctx context.Context, record *InventoryRecord) error
}

// StockMovementRepository is the append-only stock ledger
type StockMovementRepository interface {
	// Create appends a movement
	Create(ctx context.Context, movement *StockMovement) error

	// FindByKey lists movements of a record, newest first
	FindByKey(ctx context.Context, key StockKey, filter shared.Filter) ([]StockMovement, error)

	// CountByKey counts movements of a record
	CountByKey(ctx context.Context, key StockKey) (int64, error)

	// SumByKeys returns the signed delta sum per key for the given keys
	SumByKeys(ctx context.Context, keys []StockKey) (map[StockKey]int64, error)
}

// ReservationRepository defines persistence for reservations
type ReservationRepository interface {
	// FindByID finds a reservation
	FindByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// FindByIDForUpdate finds a reservation and locks its row
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// FindDue lists active reservations with expires_at <= now, oldest first
	FindDue(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	// FindActiveByKey lists active reservations holding stock on a record
	FindActiveByKey(ctx context.Context, key StockKey) ([]Reservation, error)

	// Create inserts a new reservation
	Create(ctx context.Context, reservation *Reservation) error

	// Save persists a status transition
	Save(ctx context.Context, reservation *Reservation) error
}

// ProductInfo is the slice of catalog data inventory reads
type ProductInfo struct {
	ID           uuid.UUID
	SKU          string
	Name         string
	MinimumStock int64
	CostPrice    decimal.Decimal
	Serialized   bool
	IsActive     bool
}

// ProductCatalog supplies product data. Inventory never mutates it.
type ProductCatalog interface {
	// GetProduct returns ErrNotFound for unknown products
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductInfo, error)

	// GetProducts returns the known products among ids, keyed by id
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductInfo, error)

	// ListActiveProductIDs returns every active product
	ListActiveProductIDs(ctx context.Context) ([]uuid.UUID, error)
}

// BranchDirectory supplies branch activity
type BranchDirectory interface {
	// IsActive reports whether the branch exists and is active
	IsActive(ctx context.Context, branchID uuid.UUID) (bool, error)

	// ListActiveBranchIDs returns every active branch
	ListActiveBranchIDs(ctx context.Context) ([]uuid.UUID, error)
}

// LowStockStateStore remembers which keys have already alerted.
// Arm must be atomic: of two concurrent callers only one sees true.
type LowStockStateStore interface {
	// Arm marks key as low and reports whether it was not already marked
	Arm(ctx context.Context, key StockKey) (bool, error)

	// Disarm clears the low mark for key
	Disarm(ctx context.Context, key StockKey) error
}
