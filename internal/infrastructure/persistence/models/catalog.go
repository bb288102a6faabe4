package models

import (
	"github.com/erp/inventory/internal/domain/catalog"
	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// ProductModel is the persistence model for the Product aggregate root.
type ProductModel struct {
	AggregateModel
	SKU          string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name         string          `gorm:"type:varchar(255);not null"`
	Barcode      string          `gorm:"type:varchar(50);index"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CostPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	MinimumStock int64           `gorm:"not null"`
	IsSerialized bool            `gorm:"not null"`
	IsActive     bool            `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product.
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SKU:               m.SKU,
		Name:              m.Name,
		Barcode:           m.Barcode,
		UnitPrice:         m.UnitPrice,
		CostPrice:         m.CostPrice,
		MinimumStock:      m.MinimumStock,
		IsSerialized:      m.IsSerialized,
		IsActive:          m.IsActive,
	}
}

// ToProductInfo converts the model to the slice of product data inventory reads.
func (m *ProductModel) ToProductInfo() inventory.ProductInfo {
	return inventory.ProductInfo{
		ID:           m.ID,
		SKU:          m.SKU,
		Name:         m.Name,
		MinimumStock: m.MinimumStock,
		CostPrice:    m.CostPrice,
		Serialized:   m.IsSerialized,
		IsActive:     m.IsActive,
	}
}

// ProductModelFromDomain creates a persistence model from a domain Product.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{
		SKU:          p.SKU,
		Name:         p.Name,
		Barcode:      p.Barcode,
		UnitPrice:    p.UnitPrice,
		CostPrice:    p.CostPrice,
		MinimumStock: p.MinimumStock,
		IsSerialized: p.IsSerialized,
		IsActive:     p.IsActive,
	}
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	return m
}

// BranchModel is the persistence model for the Branch aggregate root.
type BranchModel struct {
	AggregateModel
	Code     string `gorm:"type:varchar(20);not null;uniqueIndex"`
	Name     string `gorm:"type:varchar(200);not null"`
	IsActive bool   `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (BranchModel) TableName() string {
	return "branches"
}

// ToDomain converts the persistence model to a domain Branch.
func (m *BranchModel) ToDomain() *catalog.Branch {
	return &catalog.Branch{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Code:              m.Code,
		Name:              m.Name,
		IsActive:          m.IsActive,
	}
}

// BranchModelFromDomain creates a persistence model from a domain Branch.
func BranchModelFromDomain(b *catalog.Branch) *BranchModel {
	m := &BranchModel{
		Code:     b.Code,
		Name:     b.Name,
		IsActive: b.IsActive,
	}
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	return m
}
