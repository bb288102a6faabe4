package catalog

import (
	"context"
	"errors"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/catalog"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockProvisioner creates the inventory records that tie products to branches
type StockProvisioner interface {
	EnsureRecordsForProduct(ctx context.Context, productID uuid.UUID) (*inventoryapp.EnsureRecordsResult, error)
	EnsureRecordsForBranch(ctx context.Context, branchID uuid.UUID) (*inventoryapp.EnsureRecordsResult, error)
}

// CatalogService manages products and branches and keeps their stock records provisioned
type CatalogService struct {
	productRepo catalog.ProductRepository
	branchRepo  catalog.BranchRepository
	provisioner StockProvisioner
	logger      *zap.Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	productRepo catalog.ProductRepository,
	branchRepo catalog.BranchRepository,
	provisioner StockProvisioner,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		productRepo: productRepo,
		branchRepo:  branchRepo,
		provisioner: provisioner,
		logger:      logger,
	}
}

// CreateProduct registers a product and creates its zero records at every active branch.
// Provisioning failures are logged only; reads and writes create missing records lazily.
func (s *CatalogService) CreateProduct(ctx context.Context, req CreateProductRequest) (*ProductResponse, *ProvisioningResult, error) {
	product, err := catalog.NewProduct(catalog.ProductParams{
		SKU:          req.SKU,
		Name:         req.Name,
		Barcode:      req.Barcode,
		UnitPrice:    req.UnitPrice,
		CostPrice:    req.CostPrice,
		MinimumStock: req.MinimumStock,
		IsSerialized: req.IsSerialized,
	})
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.productRepo.FindBySKU(ctx, product.SKU)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, shared.NewDomainError("ALREADY_EXISTS", "Product with this SKU already exists")
	}

	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, nil, err
	}
	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("sku", product.SKU),
	)

	resp := ToProductResponse(product)
	return &resp, s.provision(ctx, "product", product.ID, s.provisioner.EnsureRecordsForProduct), nil
}

// GetProduct returns a product by ID
func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*ProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToProductResponse(product)
	return &resp, nil
}

// ListProducts returns one page of products
func (s *CatalogService) ListProducts(ctx context.Context, filter shared.Filter) ([]ProductResponse, error) {
	products, err := s.productRepo.FindAll(ctx, filter.Normalize())
	if err != nil {
		return nil, err
	}
	out := make([]ProductResponse, len(products))
	for i := range products {
		out[i] = ToProductResponse(&products[i])
	}
	return out, nil
}

// UpdateMinimumStock changes a product's low-stock threshold
func (s *CatalogService) UpdateMinimumStock(ctx context.Context, id uuid.UUID, minimum int64) (*ProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := product.SetMinimumStock(minimum); err != nil {
		return nil, err
	}
	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, err
	}
	resp := ToProductResponse(product)
	return &resp, nil
}

// CreateBranch registers an inactive branch
func (s *CatalogService) CreateBranch(ctx context.Context, req CreateBranchRequest) (*BranchResponse, error) {
	branch, err := catalog.NewBranch(req.Code, req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.branchRepo.Save(ctx, branch); err != nil {
		return nil, err
	}
	resp := ToBranchResponse(branch)
	return &resp, nil
}

// ListBranches returns one page of branches
func (s *CatalogService) ListBranches(ctx context.Context, filter shared.Filter) ([]BranchResponse, error) {
	branches, err := s.branchRepo.FindAll(ctx, filter.Normalize())
	if err != nil {
		return nil, err
	}
	out := make([]BranchResponse, len(branches))
	for i := range branches {
		out[i] = ToBranchResponse(&branches[i])
	}
	return out, nil
}

// ActivateBranch activates a branch and creates its zero records for every active product.
// Activating an active branch still re-runs provisioning, which is idempotent.
func (s *CatalogService) ActivateBranch(ctx context.Context, id uuid.UUID) (*BranchResponse, *ProvisioningResult, error) {
	branch, err := s.branchRepo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if branch.Activate() {
		if err := s.branchRepo.Save(ctx, branch); err != nil {
			return nil, nil, err
		}
		s.logger.Info("Branch activated", zap.String("branch_id", branch.ID.String()))
	}

	resp := ToBranchResponse(branch)
	return &resp, s.provision(ctx, "branch", branch.ID, s.provisioner.EnsureRecordsForBranch), nil
}

// DeactivateBranch marks a branch inactive; its records and ledger are kept
func (s *CatalogService) DeactivateBranch(ctx context.Context, id uuid.UUID) (*BranchResponse, error) {
	branch, err := s.branchRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if branch.Deactivate() {
		if err := s.branchRepo.Save(ctx, branch); err != nil {
			return nil, err
		}
	}
	resp := ToBranchResponse(branch)
	return &resp, nil
}

func (s *CatalogService) provision(
	ctx context.Context,
	kind string,
	id uuid.UUID,
	ensure func(context.Context, uuid.UUID) (*inventoryapp.EnsureRecordsResult, error),
) *ProvisioningResult {
	result, err := ensure(ctx, id)
	if err != nil {
		s.logger.Error("Stock record provisioning failed",
			zap.String("kind", kind),
			zap.String("id", id.String()),
			zap.Error(err),
		)
		return nil
	}
	return &ProvisioningResult{
		Created:  result.Created,
		Existing: result.Existing,
		Failed:   result.Failed,
	}
}
