package catalog

import (
	"time"

	"github.com/erp/inventory/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateProductRequest represents a request to create a new product
type CreateProductRequest struct {
	SKU          string          `json:"sku" binding:"max=100"`
	Name         string          `json:"name" binding:"required,min=1,max=255"`
	Barcode      string          `json:"barcode" binding:"max=50"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	MinimumStock *int64          `json:"minimum_stock" binding:"omitempty,min=0"`
	IsSerialized bool            `json:"is_serialized"`
}

// CreateBranchRequest represents a request to register a branch
type CreateBranchRequest struct {
	Code string `json:"code" binding:"required,min=1,max=20"`
	Name string `json:"name" binding:"required,min=1,max=200"`
}

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID           uuid.UUID       `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Barcode      string          `json:"barcode"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	MinimumStock int64           `json:"minimum_stock"`
	IsSerialized bool            `json:"is_serialized"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BranchResponse represents a branch in API responses
type BranchResponse struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProvisioningResult reports stock record creation triggered by a catalog change
type ProvisioningResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:           p.ID,
		SKU:          p.SKU,
		Name:         p.Name,
		Barcode:      p.Barcode,
		UnitPrice:    p.UnitPrice,
		CostPrice:    p.CostPrice,
		MinimumStock: p.MinimumStock,
		IsSerialized: p.IsSerialized,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// ToBranchResponse converts a domain Branch to BranchResponse
func ToBranchResponse(b *catalog.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		Code:      b.Code,
		Name:      b.Name,
		IsActive:  b.IsActive,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}
