package persistence

import (
	"context"
	"strings"

	"github.com/erp/inventory/internal/domain/catalog"
	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProductRepository implements catalog.ProductRepository and the
// read-only inventory.ProductCatalog over the same table.
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, classifyError("find product", err)
	}
	return model.ToDomain(), nil
}

// FindBySKU finds a product by SKU, case-insensitively
func (r *GormProductRepository) FindBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("sku = ?", strings.ToUpper(strings.TrimSpace(sku))).
		First(&model).Error; err != nil {
		return nil, classifyError("find product by sku", err)
	}
	return model.ToDomain(), nil
}

// FindAll lists products, by SKU unless the filter names a sort field
func (r *GormProductRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Product, error) {
	filter = filter.Normalize()
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).
		Order(orderClause(filter.OrderBy, filter.OrderDir, ProductSortFields, "sku")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, classifyError("list products", err)
	}
	products := make([]catalog.Product, len(rows))
	for i := range rows {
		products[i] = *rows[i].ToDomain()
	}
	return products, nil
}

// Save creates or updates a product
func (r *GormProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	if err := r.db.WithContext(ctx).Save(models.ProductModelFromDomain(product)).Error; err != nil {
		return classifyError("save product", err)
	}
	return nil
}

// GetProduct implements inventory.ProductCatalog
func (r *GormProductRepository) GetProduct(ctx context.Context, productID uuid.UUID) (*inventory.ProductInfo, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).Where("id = ?", productID).First(&model).Error; err != nil {
		return nil, classifyError("get product", err)
	}
	info := model.ToProductInfo()
	return &info, nil
}

// GetProducts implements inventory.ProductCatalog
func (r *GormProductRepository) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.ProductInfo, error) {
	out := make(map[uuid.UUID]inventory.ProductInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, classifyError("get products", err)
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].ToProductInfo()
	}
	return out, nil
}

// ListActiveProductIDs implements inventory.ProductCatalog
func (r *GormProductRepository) ListActiveProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.ProductModel{}).
		Where("is_active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, classifyError("list active products", err)
	}
	return ids, nil
}

// GormBranchRepository implements catalog.BranchRepository and inventory.BranchDirectory
type GormBranchRepository struct {
	db *gorm.DB
}

// NewGormBranchRepository creates a new GormBranchRepository
func NewGormBranchRepository(db *gorm.DB) *GormBranchRepository {
	return &GormBranchRepository{db: db}
}

// FindByID finds a branch by its ID
func (r *GormBranchRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Branch, error) {
	var model models.BranchModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, classifyError("find branch", err)
	}
	return model.ToDomain(), nil
}

// FindAll lists branches, by code unless the filter names a sort field
func (r *GormBranchRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Branch, error) {
	filter = filter.Normalize()
	var rows []models.BranchModel
	if err := r.db.WithContext(ctx).
		Order(orderClause(filter.OrderBy, filter.OrderDir, BranchSortFields, "code")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, classifyError("list branches", err)
	}
	branches := make([]catalog.Branch, len(rows))
	for i := range rows {
		branches[i] = *rows[i].ToDomain()
	}
	return branches, nil
}

// Save creates or updates a branch; the code is unique
func (r *GormBranchRepository) Save(ctx context.Context, branch *catalog.Branch) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "is_active", "version", "updated_at"}),
		}).
		Create(models.BranchModelFromDomain(branch)).Error; err != nil {
		return classifyError("save branch", err)
	}
	return nil
}

// IsActive implements inventory.BranchDirectory
func (r *GormBranchRepository) IsActive(ctx context.Context, branchID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.BranchModel{}).
		Where("id = ? AND is_active = ?", branchID, true).
		Count(&count).Error; err != nil {
		return false, classifyError("check branch", err)
	}
	return count > 0, nil
}

// ListActiveBranchIDs implements inventory.BranchDirectory
func (r *GormBranchRepository) ListActiveBranchIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.BranchModel{}).
		Where("is_active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, classifyError("list active branches", err)
	}
	return ids, nil
}

var (
	_ catalog.ProductRepository = (*GormProductRepository)(nil)
	_ inventory.ProductCatalog  = (*GormProductRepository)(nil)
	_ catalog.BranchRepository  = (*GormBranchRepository)(nil)
	_ inventory.BranchDirectory = (*GormBranchRepository)(nil)
)
