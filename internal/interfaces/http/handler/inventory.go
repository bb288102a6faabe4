package handler

import (
	"context"

	appinv "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/logger"
	"github.com/erp/inventory/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InventoryService is the stock ledger surface used by InventoryHandler
type InventoryService interface {
	GetAvailability(ctx context.Context, productID, branchID uuid.UUID) (*appinv.AvailabilityResponse, error)
	ApplyMovement(ctx context.Context, req appinv.ApplyMovementRequest) (*appinv.MovementResponse, error)
	EnsureRecord(ctx context.Context, productID, branchID uuid.UUID) (bool, error)
	Transfer(ctx context.Context, req appinv.TransferRequest) (*appinv.TransferResponse, error)
	ListMovements(ctx context.Context, productID, branchID uuid.UUID, filter shared.Filter) (*shared.Paginated[appinv.MovementResponse], error)
	ListLowStock(ctx context.Context, branchID uuid.UUID) ([]appinv.LowStockItem, error)
	BranchValuation(ctx context.Context, branchID uuid.UUID) (*appinv.ValuationResponse, error)
}

// InventoryHandler handles stock position and movement endpoints
type InventoryHandler struct {
	BaseHandler
	inventoryService InventoryService
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventoryService InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService}
}

// EnsureRecordResponse reports whether a record was created
type EnsureRecordResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	BranchID  uuid.UUID `json:"branch_id"`
	Created   bool      `json:"created"`
}

// GetAvailability returns on-hand, reserved and available for one product at one branch
// GET /inventory/:product_id/branches/:branch_id
func (h *InventoryHandler) GetAvailability(c *gin.Context) {
	productID, ok := h.uuidParam(c, "product_id")
	if !ok {
		return
	}
	branchID, ok := h.uuidParam(c, "branch_id")
	if !ok {
		return
	}

	availability, err := h.inventoryService.GetAvailability(c.Request.Context(), productID, branchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, availability)
}

// ApplyMovement records a signed stock change
// POST /inventory/movements
func (h *InventoryHandler) ApplyMovement(c *gin.Context) {
	var req appinv.ApplyMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if req.Actor == "" {
		req.Actor = logger.GetActor(c.Request.Context())
	}

	ctx := h.scopeTo(c, req.ProductID, req.BranchID)
	movement, err := h.inventoryService.ApplyMovement(ctx, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, movement)
}

// EnsureRecord creates a zero record for the pair if none exists
// POST /inventory/records
func (h *InventoryHandler) EnsureRecord(c *gin.Context) {
	var req appinv.EnsureRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := h.scopeTo(c, req.ProductID, req.BranchID)
	created, err := h.inventoryService.EnsureRecord(ctx, req.ProductID, req.BranchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := EnsureRecordResponse{ProductID: req.ProductID, BranchID: req.BranchID, Created: created}
	if created {
		h.Created(c, resp)
		return
	}
	h.Success(c, resp)
}

// Transfer moves stock between branches
// POST /inventory/transfers
func (h *InventoryHandler) Transfer(c *gin.Context) {
	var req appinv.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if req.Actor == "" {
		req.Actor = logger.GetActor(c.Request.Context())
	}

	ctx := h.scopeTo(c, req.ProductID, req.FromBranchID)
	transfer, err := h.inventoryService.Transfer(ctx, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, transfer)
}

// ListMovements returns the ledger for one pair, newest first
// GET /inventory/:product_id/branches/:branch_id/movements
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	productID, ok := h.uuidParam(c, "product_id")
	if !ok {
		return
	}
	branchID, ok := h.uuidParam(c, "branch_id")
	if !ok {
		return
	}

	page := dto.DefaultPageRequest()
	if err := c.ShouldBindQuery(&page); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.inventoryService.ListMovements(c.Request.Context(), productID, branchID, shared.Filter{
		Page:     page.Page,
		PageSize: page.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// ListLowStock returns records at or below their product minimum
// GET /branches/:id/low-stock
func (h *InventoryHandler) ListLowStock(c *gin.Context) {
	branchID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	items, err := h.inventoryService.ListLowStock(c.Request.Context(), branchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// BranchValuation returns the value of a branch's stock at cost
// GET /branches/:id/valuation
func (h *InventoryHandler) BranchValuation(c *gin.Context) {
	branchID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	valuation, err := h.inventoryService.BranchValuation(c.Request.Context(), branchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, valuation)
}
