package persistence

import (
	"context"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// keyOrder is the total order of inventory records; it matches StockKey.Less
const keyOrder = "branch_id ASC, product_id ASC"

// GormInventoryRecordRepository implements InventoryRecordRepository using GORM
type GormInventoryRecordRepository struct {
	db *gorm.DB
}

// NewGormInventoryRecordRepository creates a new GormInventoryRecordRepository
func NewGormInventoryRecordRepository(db *gorm.DB) *GormInventoryRecordRepository {
	return &GormInventoryRecordRepository{db: db}
}

// FindByKey finds the record for a product at a branch
func (r *GormInventoryRecordRepository) FindByKey(ctx context.Context, key inventory.StockKey) (*inventory.InventoryRecord, error) {
	return r.findByKey(r.db.WithContext(ctx), key)
}

// FindByKeyForUpdate finds the record with SELECT ... FOR UPDATE.
// Dialects without row locks (SQLite) rely on the database-level write lock instead.
func (r *GormInventoryRecordRepository) FindByKeyForUpdate(ctx context.Context, key inventory.StockKey) (*inventory.InventoryRecord, error) {
	return r.findByKey(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), key)
}

func (r *GormInventoryRecordRepository) findByKey(db *gorm.DB, key inventory.StockKey) (*inventory.InventoryRecord, error) {
	var model models.InventoryRecordModel
	if err := db.
		Where("product_id = ? AND branch_id = ?", key.ProductID, key.BranchID).
		First(&model).Error; err != nil {
		return nil, classifyError("find inventory record", err)
	}
	return model.ToDomain(), nil
}

// FindByBranch lists records at a branch ordered by product
func (r *GormInventoryRecordRepository) FindByBranch(ctx context.Context, branchID uuid.UUID, filter shared.Filter) ([]inventory.InventoryRecord, error) {
	return r.list(r.db.WithContext(ctx).Where("branch_id = ?", branchID), filter)
}

// FindAll pages through every record in key order
func (r *GormInventoryRecordRepository) FindAll(ctx context.Context, filter shared.Filter) ([]inventory.InventoryRecord, error) {
	return r.list(r.db.WithContext(ctx), filter)
}

func (r *GormInventoryRecordRepository) list(query *gorm.DB, filter shared.Filter) ([]inventory.InventoryRecord, error) {
	filter = filter.Normalize()
	var rows []models.InventoryRecordModel
	if err := query.
		Order(keyOrder).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, classifyError("list inventory records", err)
	}

	records := make([]inventory.InventoryRecord, len(rows))
	for i := range rows {
		records[i] = *rows[i].ToDomain()
	}
	return records, nil
}

// EnsureExists inserts a zero record with ON CONFLICT DO NOTHING on the key,
// so concurrent callers never create duplicates.
func (r *GormInventoryRecordRepository) EnsureExists(ctx context.Context, key inventory.StockKey) (bool, error) {
	record, err := inventory.NewInventoryRecord(key.ProductID, key.BranchID)
	if err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "branch_id"}},
			DoNothing: true,
		}).
		Create(models.InventoryRecordModelFromDomain(record))
	if result.Error != nil {
		return false, classifyError("ensure inventory record", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Save writes quantities only if the stored version is the one the record was loaded at
func (r *GormInventoryRecordRepository) Save(ctx context.Context, record *inventory.InventoryRecord) error {
	result := r.db.WithContext(ctx).
		Model(&models.InventoryRecordModel{}).
		Where("id = ? AND version = ?", record.ID, record.Version-1).
		Updates(map[string]any{
			"on_hand_quantity":  record.OnHandQuantity,
			"reserved_quantity": record.ReservedQuantity,
			"version":           record.Version,
			"updated_at":        record.UpdatedAt,
		})
	if result.Error != nil {
		return classifyError("save inventory record", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormInventoryRecordRepository implements InventoryRecordRepository
var _ inventory.InventoryRecordRepository = (*GormInventoryRecordRepository)(nil)
