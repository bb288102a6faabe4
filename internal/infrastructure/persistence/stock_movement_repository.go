package persistence

import (
	"context"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStockMovementRepository implements the append-only StockMovementRepository
type GormStockMovementRepository struct {
	db *gorm.DB
}

// NewGormStockMovementRepository creates a new GormStockMovementRepository
func NewGormStockMovementRepository(db *gorm.DB) *GormStockMovementRepository {
	return &GormStockMovementRepository{db: db}
}

// Create appends a movement
func (r *GormStockMovementRepository) Create(ctx context.Context, movement *inventory.StockMovement) error {
	if err := r.db.WithContext(ctx).Create(models.StockMovementModelFromDomain(movement)).Error; err != nil {
		return classifyError("append stock movement", err)
	}
	return nil
}

// FindByKey lists movements of a record, newest first
func (r *GormStockMovementRepository) FindByKey(ctx context.Context, key inventory.StockKey, filter shared.Filter) ([]inventory.StockMovement, error) {
	filter = filter.Normalize()
	var rows []models.StockMovementModel
	if err := r.db.WithContext(ctx).
		Where("branch_id = ? AND product_id = ?", key.BranchID, key.ProductID).
		Order("occurred_at DESC").
		Order("id DESC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, classifyError("list stock movements", err)
	}

	movements := make([]inventory.StockMovement, len(rows))
	for i := range rows {
		movements[i] = *rows[i].ToDomain()
	}
	return movements, nil
}

// CountByKey counts movements of a record
func (r *GormStockMovementRepository) CountByKey(ctx context.Context, key inventory.StockKey) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockMovementModel{}).
		Where("branch_id = ? AND product_id = ?", key.BranchID, key.ProductID).
		Count(&count).Error; err != nil {
		return 0, classifyError("count stock movements", err)
	}
	return count, nil
}

// SumByKeys returns the signed ledger sum for each requested key.
// Keys without movements are present with a zero sum.
func (r *GormStockMovementRepository) SumByKeys(ctx context.Context, keys []inventory.StockKey) (map[inventory.StockKey]int64, error) {
	sums := make(map[inventory.StockKey]int64, len(keys))
	if len(keys) == 0 {
		return sums, nil
	}

	productIDs := make([]uuid.UUID, 0, len(keys))
	branchIDs := make([]uuid.UUID, 0, len(keys))
	seenProduct := make(map[uuid.UUID]bool)
	seenBranch := make(map[uuid.UUID]bool)
	for _, k := range keys {
		sums[k] = 0
		if !seenProduct[k.ProductID] {
			seenProduct[k.ProductID] = true
			productIDs = append(productIDs, k.ProductID)
		}
		if !seenBranch[k.BranchID] {
			seenBranch[k.BranchID] = true
			branchIDs = append(branchIDs, k.BranchID)
		}
	}

	var rows []struct {
		ProductID uuid.UUID
		BranchID  uuid.UUID
		Total     int64
	}
	// The IN lists select a superset of the keys; extra pairs are dropped below
	if err := r.db.WithContext(ctx).
		Model(&models.StockMovementModel{}).
		Select("product_id, branch_id, COALESCE(SUM(quantity_delta), 0) AS total").
		Where("product_id IN ? AND branch_id IN ?", productIDs, branchIDs).
		Group("product_id, branch_id").
		Scan(&rows).Error; err != nil {
		return nil, classifyError("sum stock movements", err)
	}

	for _, row := range rows {
		k := inventory.StockKey{ProductID: row.ProductID, BranchID: row.BranchID}
		if _, ok := sums[k]; ok {
			sums[k] = row.Total
		}
	}
	return sums, nil
}

// Ensure GormStockMovementRepository implements StockMovementRepository
var _ inventory.StockMovementRepository = (*GormStockMovementRepository)(nil)
