package handler

import (
	"context"

	appcatalog "github.com/erp/inventory/internal/application/catalog"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CatalogService is the product and branch surface used by CatalogHandler
type CatalogService interface {
	CreateProduct(ctx context.Context, req appcatalog.CreateProductRequest) (*appcatalog.ProductResponse, *appcatalog.ProvisioningResult, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*appcatalog.ProductResponse, error)
	ListProducts(ctx context.Context, filter shared.Filter) ([]appcatalog.ProductResponse, error)
	UpdateMinimumStock(ctx context.Context, id uuid.UUID, minimum int64) (*appcatalog.ProductResponse, error)
	CreateBranch(ctx context.Context, req appcatalog.CreateBranchRequest) (*appcatalog.BranchResponse, error)
	ListBranches(ctx context.Context, filter shared.Filter) ([]appcatalog.BranchResponse, error)
	ActivateBranch(ctx context.Context, id uuid.UUID) (*appcatalog.BranchResponse, *appcatalog.ProvisioningResult, error)
	DeactivateBranch(ctx context.Context, id uuid.UUID) (*appcatalog.BranchResponse, error)
}

// CatalogHandler handles product and branch endpoints
type CatalogHandler struct {
	BaseHandler
	catalogService CatalogService
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalogService CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// ProductCreatedResponse is a new product and the records created for it
type ProductCreatedResponse struct {
	Product      *appcatalog.ProductResponse    `json:"product"`
	Provisioning *appcatalog.ProvisioningResult `json:"provisioning"`
}

// BranchActivatedResponse is an activated branch and the records created for it
type BranchActivatedResponse struct {
	Branch       *appcatalog.BranchResponse     `json:"branch"`
	Provisioning *appcatalog.ProvisioningResult `json:"provisioning"`
}

// UpdateMinimumStockRequest changes a product's low-stock threshold
type UpdateMinimumStockRequest struct {
	MinimumStock *int64 `json:"minimum_stock" binding:"required,min=0"`
}

// CreateProduct registers a product, then ensures its records at every active branch
// POST /products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req appcatalog.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	product, provisioning, err := h.catalogService.CreateProduct(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ProductCreatedResponse{Product: product, Provisioning: provisioning})
}

// GetProduct returns a product by ID
// GET /products/:id
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	product, err := h.catalogService.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// ListProducts returns a page of products, ordered by SKU unless order_by is given
// GET /products
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	page := dto.DefaultPageRequest()
	if err := c.ShouldBindQuery(&page); err != nil {
		h.BindError(c, err)
		return
	}

	products, err := h.catalogService.ListProducts(c.Request.Context(), shared.Filter{
		Page:     page.Page,
		PageSize: page.PageSize,
		OrderBy:  page.OrderBy,
		OrderDir: page.OrderDir,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, products)
}

// UpdateMinimumStock changes the low-stock threshold
// PATCH /products/:id/minimum-stock
func (h *CatalogHandler) UpdateMinimumStock(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req UpdateMinimumStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	product, err := h.catalogService.UpdateMinimumStock(c.Request.Context(), id, *req.MinimumStock)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// CreateBranch registers an inactive branch
// POST /branches
func (h *CatalogHandler) CreateBranch(c *gin.Context) {
	var req appcatalog.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	branch, err := h.catalogService.CreateBranch(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, branch)
}

// ListBranches returns a page of branches, ordered by code unless order_by is given
// GET /branches
func (h *CatalogHandler) ListBranches(c *gin.Context) {
	page := dto.DefaultPageRequest()
	if err := c.ShouldBindQuery(&page); err != nil {
		h.BindError(c, err)
		return
	}

	branches, err := h.catalogService.ListBranches(c.Request.Context(), shared.Filter{
		Page:     page.Page,
		PageSize: page.PageSize,
		OrderBy:  page.OrderBy,
		OrderDir: page.OrderDir,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, branches)
}

// ActivateBranch activates a branch, then ensures its records for every active product
// POST /branches/:id/activate
func (h *CatalogHandler) ActivateBranch(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	branch, provisioning, err := h.catalogService.ActivateBranch(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, BranchActivatedResponse{Branch: branch, Provisioning: provisioning})
}

// DeactivateBranch marks a branch inactive
// POST /branches/:id/deactivate
func (h *CatalogHandler) DeactivateBranch(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	branch, err := h.catalogService.DeactivateBranch(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, branch)
}
