package handler

import (
	"context"
	"errors"
	"io"

	appinv "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReservationService is the hold lifecycle surface used by ReservationHandler
type ReservationService interface {
	Reserve(ctx context.Context, req appinv.ReserveRequest) (*appinv.ReservationResponse, error)
	GetReservation(ctx context.Context, reservationID uuid.UUID) (*appinv.ReservationResponse, error)
	Commit(ctx context.Context, reservationID uuid.UUID, req appinv.CommitRequest) (*appinv.CommitResponse, error)
	Release(ctx context.Context, reservationID uuid.UUID) (*appinv.ReservationResponse, error)
}

// ReservationHandler handles reservation endpoints
type ReservationHandler struct {
	BaseHandler
	reservationService ReservationService
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(reservationService ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

// Reserve places a time-limited hold. Too little available stock is a
// declined reservation: 409 with declined set.
// POST /reservations
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req appinv.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := h.scopeTo(c, req.ProductID, req.BranchID)
	reservation, err := h.reservationService.Reserve(ctx, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, reservation)
}

// Get returns a reservation, expiring it first when it is past due
// GET /reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	reservation, err := h.reservationService.GetReservation(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, reservation)
}

// Commit turns a reservation into a sale movement. The body is optional.
// POST /reservations/:id/commit
func (h *ReservationHandler) Commit(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req appinv.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BindError(c, err)
		return
	}
	if req.Actor == "" {
		req.Actor = logger.GetActor(c.Request.Context())
	}

	result, err := h.reservationService.Commit(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Release frees a reservation's hold; releasing a closed reservation is a no-op
// POST /reservations/:id/release
func (h *ReservationHandler) Release(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	reservation, err := h.reservationService.Release(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, reservation)
}
