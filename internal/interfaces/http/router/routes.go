package router

import (
	"github.com/erp/inventory/internal/infrastructure/logger"
	"github.com/erp/inventory/internal/interfaces/http/handler"
	"github.com/erp/inventory/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers bundles every HTTP handler of the service
type Handlers struct {
	Inventory    *handler.InventoryHandler
	Reservations *handler.ReservationHandler
	Catalog      *handler.CatalogHandler
	Maintenance  *handler.MaintenanceHandler
	BranchStream *handler.BranchStreamHandler
	Health       *handler.HealthHandler
}

// Options tunes the engine built by NewEngine
type Options struct {
	BodyLimit        int64
	StreamsPerClient int
}

// NewEngine builds the gin engine with middleware and every route registered
func NewEngine(h Handlers, log *zap.Logger, opts Options) *gin.Engine {
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Actor(),
	)
	engine.GET("/health", h.Health.Health)

	r := NewRouter(engine)
	for _, group := range Groups(h, opts) {
		r.Register(group)
	}
	r.Setup()
	return engine
}

// Groups returns the /api/v1 route groups
func Groups(h Handlers, opts Options) []*DomainGroup {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = middleware.DefaultBodyLimit
	}
	body := middleware.BodyLimit(opts.BodyLimit)

	inventory := NewDomainGroup("inventory", "/inventory").Use(body).
		GET("/:product_id/branches/:branch_id", h.Inventory.GetAvailability).
		GET("/:product_id/branches/:branch_id/movements", h.Inventory.ListMovements).
		POST("/movements", h.Inventory.ApplyMovement).
		POST("/records", h.Inventory.EnsureRecord).
		POST("/transfers", h.Inventory.Transfer)

	branches := NewDomainGroup("branches", "/branches").Use(body).
		POST("", h.Catalog.CreateBranch).
		GET("", h.Catalog.ListBranches).
		POST("/:id/activate", h.Catalog.ActivateBranch).
		POST("/:id/deactivate", h.Catalog.DeactivateBranch).
		GET("/:id/low-stock", h.Inventory.ListLowStock).
		GET("/:id/valuation", h.Inventory.BranchValuation).
		GET("/:id/stream", middleware.LimitStreams(middleware.NewStreamLimiter(opts.StreamsPerClient)), h.BranchStream.Stream)

	products := NewDomainGroup("products", "/products").Use(body).
		POST("", h.Catalog.CreateProduct).
		GET("", h.Catalog.ListProducts).
		GET("/:id", h.Catalog.GetProduct).
		PATCH("/:id/minimum-stock", h.Catalog.UpdateMinimumStock)

	reservations := NewDomainGroup("reservations", "/reservations").Use(body).
		POST("", h.Reservations.Reserve).
		GET("/:id", h.Reservations.Get).
		POST("/:id/commit", h.Reservations.Commit).
		POST("/:id/release", h.Reservations.Release)

	maintenance := NewDomainGroup("maintenance", "/maintenance").
		POST("/reconcile", h.Maintenance.Reconcile).
		POST("/sweep-reservations", h.Maintenance.SweepReservations)

	return []*DomainGroup{inventory, branches, products, reservations, maintenance}
}
