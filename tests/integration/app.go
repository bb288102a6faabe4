package integration

import (
	"context"
	"testing"
	"time"

	catalogapp "github.com/erp/inventory/internal/application/catalog"
	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/infrastructure/broadcast"
	"github.com/erp/inventory/internal/infrastructure/cache"
	"github.com/erp/inventory/internal/infrastructure/event"
	"github.com/erp/inventory/internal/infrastructure/persistence"
	"github.com/erp/inventory/internal/interfaces/http/handler"
	"github.com/erp/inventory/internal/interfaces/http/router"
	"github.com/erp/inventory/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestApp is the service wired the way the server wires it, minus the listener
type TestApp struct {
	DB             *TestDB
	Inventory      *inventoryapp.InventoryService
	Reservations   *inventoryapp.ReservationService
	Reconciliation *inventoryapp.ReconciliationService
	Catalog        *catalogapp.CatalogService
	Broadcaster    *broadcast.BranchBroadcaster
	Events         *testutil.EventRecorder
	Engine         *gin.Engine
}

// AppOption customises NewTestApp
type AppOption func(*appOptions)

type appOptions struct {
	lowStock inventory.LowStockStateStore
	relay    *broadcast.RedisRelay
}

// WithLowStockStore replaces the in-memory low-stock state
func WithLowStockStore(store inventory.LowStockStateStore) AppOption {
	return func(o *appOptions) { o.lowStock = store }
}

// WithRelay fans branch messages out through relay
func WithRelay(relay *broadcast.RedisRelay) AppOption {
	return func(o *appOptions) { o.relay = relay }
}

// NewTestApp wires every service over tdb
func NewTestApp(t *testing.T, tdb *TestDB, opts ...AppOption) *TestApp {
	t.Helper()

	o := &appOptions{lowStock: cache.NewInMemoryLowStockStateStore()}
	for _, opt := range opts {
		opt(o)
	}

	log := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	scope := tdb.TransactionScope()
	productRepo := persistence.NewGormProductRepository(tdb.DB)
	branchRepo := persistence.NewGormBranchRepository(tdb.DB)
	recordRepo := persistence.NewGormInventoryRecordRepository(tdb.DB)
	movementRepo := persistence.NewGormStockMovementRepository(tdb.DB)
	reservationRepo := persistence.NewGormReservationRepository(tdb.DB)

	broadcastOpts := []broadcast.Option{broadcast.WithLogger(log)}
	if o.relay != nil {
		broadcastOpts = append(broadcastOpts, broadcast.WithRelay(o.relay))
	}
	broadcaster := broadcast.NewBranchBroadcaster(broadcastOpts...)
	if o.relay != nil {
		o.relay.Attach(broadcaster)
	}
	t.Cleanup(broadcaster.Close)

	recorder := testutil.NewEventRecorder(
		inventory.EventTypeInventoryChanged,
		inventory.EventTypeLowStockAlert,
		inventory.EventTypeReservationExpired,
		inventory.EventTypeReconciliationMismatch,
	)

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(inventoryapp.NewBranchEventForwarder(broadcaster, log))
	bus.Subscribe(inventoryapp.NewLowStockMonitor(recordRepo, productRepo, o.lowStock, bus, log))
	bus.Subscribe(inventoryapp.NewMismatchAlertHandler(log))
	bus.Subscribe(recorder)

	// contention on one row under serializable isolation aborts often
	retry := inventoryapp.RetryPolicy{
		MaxAttempts:     50,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     50 * time.Millisecond,
	}

	inventoryService := inventoryapp.NewInventoryService(scope, recordRepo, movementRepo, productRepo, branchRepo, log)
	inventoryService.SetEventPublisher(bus)
	inventoryService.SetRetryPolicy(retry)

	reservationService := inventoryapp.NewReservationService(scope, reservationRepo, inventoryapp.ReservationConfig{}, log)
	reservationService.SetEventPublisher(bus)
	reservationService.SetRetryPolicy(retry)
	reservationService.SetRecordHealer(inventoryService)

	reconciliationService := inventoryapp.NewReconciliationService(scope, bus, 50, log)
	catalogService := catalogapp.NewCatalogService(productRepo, branchRepo, inventoryService, log)

	engine := router.NewEngine(router.Handlers{
		Inventory:    handler.NewInventoryHandler(inventoryService),
		Reservations: handler.NewReservationHandler(reservationService),
		Catalog:      handler.NewCatalogHandler(catalogService),
		Maintenance:  handler.NewMaintenanceHandler(reconciliationService, reservationService),
		BranchStream: handler.NewBranchStreamHandler(broadcaster, time.Second),
		Health: handler.NewHealthHandler("test", map[string]handler.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := tdb.DB.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		}),
	}, log, router.Options{StreamsPerClient: 4})

	return &TestApp{
		DB:             tdb,
		Inventory:      inventoryService,
		Reservations:   reservationService,
		Reconciliation: reconciliationService,
		Catalog:        catalogService,
		Broadcaster:    broadcaster,
		Events:         recorder,
		Engine:         engine,
	}
}

// CreateProduct registers a product with the given minimum stock
func (a *TestApp) CreateProduct(t *testing.T, sku string, minimum int64) uuid.UUID {
	t.Helper()

	p, _, err := a.Catalog.CreateProduct(context.Background(), catalogapp.CreateProductRequest{
		SKU:          sku,
		Name:         "Product " + sku,
		UnitPrice:    decimal.NewFromInt(20),
		CostPrice:    decimal.NewFromInt(12),
		MinimumStock: &minimum,
	})
	require.NoError(t, err)
	return p.ID
}

// CreateBranch registers and activates a branch
func (a *TestApp) CreateBranch(t *testing.T, code string) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	b, err := a.Catalog.CreateBranch(ctx, catalogapp.CreateBranchRequest{Code: code, Name: "Branch " + code})
	require.NoError(t, err)
	if !b.IsActive {
		_, _, err = a.Catalog.ActivateBranch(ctx, b.ID)
		require.NoError(t, err)
	}
	return b.ID
}

// Receive applies a receipt movement
func (a *TestApp) Receive(t *testing.T, productID, branchID uuid.UUID, qty int64) {
	t.Helper()

	_, err := a.Inventory.ApplyMovement(context.Background(), inventoryapp.ApplyMovementRequest{
		ProductID:    productID,
		BranchID:     branchID,
		Delta:        qty,
		MovementType: string(inventory.MovementTypeReceipt),
		Reference:    "PO-TEST",
		Actor:        "tester",
	})
	require.NoError(t, err)
}

// Availability reads the current stock position
func (a *TestApp) Availability(t *testing.T, productID, branchID uuid.UUID) *inventoryapp.AvailabilityResponse {
	t.Helper()

	av, err := a.Inventory.GetAvailability(context.Background(), productID, branchID)
	require.NoError(t, err)
	return av
}
