package inventory

import (
	"bytes"
	"fmt"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
)

// StockKey identifies one inventory record
type StockKey struct {
	ProductID uuid.UUID
	BranchID  uuid.UUID
}

// NewStockKey builds a key and validates both halves
func NewStockKey(productID, branchID uuid.UUID) (StockKey, error) {
	k := StockKey{ProductID: productID, BranchID: branchID}
	if err := k.Validate(); err != nil {
		return StockKey{}, err
	}
	return k, nil
}

// Validate rejects nil identifiers
func (k StockKey) Validate() error {
	if k.ProductID == uuid.Nil {
		return shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if k.BranchID == uuid.Nil {
		return shared.NewDomainError("INVALID_BRANCH", "Branch ID cannot be empty")
	}
	return nil
}

// String renders the key as product/branch
func (k StockKey) String() string {
	return fmt.Sprintf("%s/%s", k.ProductID, k.BranchID)
}

// Less orders keys by branch then product. Multi-key transactions lock
// rows in this order.
func (k StockKey) Less(other StockKey) bool {
	if c := bytes.Compare(k.BranchID[:], other.BranchID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(k.ProductID[:], other.ProductID[:]) < 0
}
