package handler

import (
	"context"

	appinv "github.com/erp/inventory/internal/application/inventory"
	"github.com/gin-gonic/gin"
)

// Reconciler checks every record against its ledger
type Reconciler interface {
	Reconcile(ctx context.Context) (*appinv.ReconciliationReport, error)
}

// ExpiryRunner expires one batch of due reservations
type ExpiryRunner interface {
	ExpireDue(ctx context.Context) (*appinv.ExpirySweepStats, error)
}

// MaintenanceHandler exposes on-demand ledger reconciliation and reservation expiry
type MaintenanceHandler struct {
	BaseHandler
	reconciler Reconciler
	expiry     ExpiryRunner
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(reconciler Reconciler, expiry ExpiryRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler, expiry: expiry}
}

// Reconcile runs a ledger check now. Mismatches are reported, not repaired.
// POST /maintenance/reconcile
func (h *MaintenanceHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Reconcile(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// SweepReservations expires one batch of due reservations now
// POST /maintenance/sweep-reservations
func (h *MaintenanceHandler) SweepReservations(c *gin.Context) {
	stats, err := h.expiry.ExpireDue(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
