package catalog

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultMinimumStock is the low-stock threshold of a product created without one
const DefaultMinimumStock int64 = 5

// Product is the catalog entry inventory keys its records on.
// Prices and thresholds are validated here, not by persistence hooks.
type Product struct {
	shared.BaseAggregateRoot
	SKU          string
	Name         string
	Barcode      string
	UnitPrice    decimal.Decimal
	CostPrice    decimal.Decimal
	MinimumStock int64
	IsSerialized bool
	IsActive     bool
}

// ProductParams carries the inputs of NewProduct
type ProductParams struct {
	SKU          string
	Name         string
	Barcode      string
	UnitPrice    decimal.Decimal
	CostPrice    decimal.Decimal
	MinimumStock *int64
	IsSerialized bool
}

// NewProduct validates params and builds an active product.
// A blank SKU is generated; a nil minimum stock defaults to DefaultMinimumStock.
func NewProduct(p ProductParams) (*Product, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if len(name) > 255 {
		return nil, shared.NewDomainError("INVALID_NAME", "Product name cannot exceed 255 characters")
	}
	if err := validatePrices(p.UnitPrice, p.CostPrice); err != nil {
		return nil, err
	}

	minimum := DefaultMinimumStock
	if p.MinimumStock != nil {
		minimum = *p.MinimumStock
	}
	if minimum < 0 {
		return nil, shared.NewDomainError("INVALID_MINIMUM_STOCK", "Minimum stock cannot be negative")
	}

	sku := strings.ToUpper(strings.TrimSpace(p.SKU))
	if sku == "" {
		generated, err := GenerateSKU(time.Now())
		if err != nil {
			return nil, err
		}
		sku = generated
	}
	if len(sku) > 100 {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot exceed 100 characters")
	}

	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SKU:               sku,
		Name:              name,
		Barcode:           strings.TrimSpace(p.Barcode),
		UnitPrice:         p.UnitPrice,
		CostPrice:         p.CostPrice,
		MinimumStock:      minimum,
		IsSerialized:      p.IsSerialized,
		IsActive:          true,
	}, nil
}

// UpdatePrices changes selling and cost price together
func (p *Product) UpdatePrices(unitPrice, costPrice decimal.Decimal) error {
	if err := validatePrices(unitPrice, costPrice); err != nil {
		return err
	}
	p.UnitPrice = unitPrice
	p.CostPrice = costPrice
	p.IncrementVersion()
	return nil
}

// SetMinimumStock changes the low-stock threshold
func (p *Product) SetMinimumStock(minimum int64) error {
	if minimum < 0 {
		return shared.NewDomainError("INVALID_MINIMUM_STOCK", "Minimum stock cannot be negative")
	}
	p.MinimumStock = minimum
	p.IncrementVersion()
	return nil
}

func validatePrices(unitPrice, costPrice decimal.Decimal) error {
	if unitPrice.IsNegative() || costPrice.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Prices cannot be negative")
	}
	if unitPrice.LessThan(costPrice) {
		return shared.NewDomainError("INVALID_PRICE", "Selling price must not be lower than cost price")
	}
	return nil
}

const skuAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateSKU builds PROD-<base36 millis>-<3 random base36 chars>
func GenerateSKU(now time.Time) (string, error) {
	suffix := make([]byte, 3)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(skuAlphabet))))
		if err != nil {
			return "", err
		}
		suffix[i] = skuAlphabet[n.Int64()]
	}
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return "PROD-" + stamp + "-" + string(suffix), nil
}
