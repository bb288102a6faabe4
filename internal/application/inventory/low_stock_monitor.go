package inventory

import (
	"context"
	"fmt"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LowStockMonitor compares availability with the product minimum after every
// committed change. Alerts are edge-triggered: a key alerts once when it drops
// to or below the minimum and is re-armed only after it rises above it.
// Reservation-only changes (reserve, release, expiry) can re-arm a key but never
// alert; held stock is judged when the movement that consumes it is applied.
type LowStockMonitor struct {
	recordRepo inventory.InventoryRecordRepository
	catalog    inventory.ProductCatalog
	state      inventory.LowStockStateStore
	publisher  shared.EventPublisher
	logger     *zap.Logger
}

// NewLowStockMonitor creates a new LowStockMonitor
func NewLowStockMonitor(
	recordRepo inventory.InventoryRecordRepository,
	catalog inventory.ProductCatalog,
	state inventory.LowStockStateStore,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *LowStockMonitor {
	return &LowStockMonitor{
		recordRepo: recordRepo,
		catalog:    catalog,
		state:      state,
		publisher:  publisher,
		logger:     logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (m *LowStockMonitor) EventTypes() []string {
	return []string{inventory.EventTypeInventoryChanged}
}

// Handle re-evaluates the key of an InventoryChanged event
func (m *LowStockMonitor) Handle(ctx context.Context, event shared.DomainEvent) error {
	changed, ok := event.(*inventory.InventoryChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: %T", event)
	}
	key, err := inventory.NewStockKey(changed.ProductID, changed.BranchID)
	if err != nil {
		return err
	}
	_, err = m.evaluate(ctx, key, changed.MovementType != "")
	return err
}

// Evaluate reads current availability and the product minimum and publishes a
// LowStockAlert on a downward crossing. It returns the alert, or nil when none fired.
func (m *LowStockMonitor) Evaluate(ctx context.Context, productID, branchID uuid.UUID) (*inventory.LowStockAlertEvent, error) {
	key, err := inventory.NewStockKey(productID, branchID)
	if err != nil {
		return nil, err
	}
	return m.evaluate(ctx, key, true)
}

// evaluate disarms key when stock is above the minimum. Only when mayAlert is
// set does a low key get armed and alerted.
func (m *LowStockMonitor) evaluate(ctx context.Context, key inventory.StockKey, mayAlert bool) (*inventory.LowStockAlertEvent, error) {
	product, err := m.catalog.GetProduct(ctx, key.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	record, err := m.recordRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load inventory record: %w", err)
	}

	available := record.Available()
	if available > product.MinimumStock {
		return nil, m.disarm(ctx, key)
	}
	if !mayAlert {
		return nil, nil
	}

	armed, err := m.state.Arm(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("set low-stock state: %w", err)
	}
	if !armed {
		return nil, nil
	}

	// a concurrent evaluation may have seen a later, higher level and disarmed
	// before this Arm; confirm against a fresh read before alerting
	record, err = m.recordRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reload inventory record: %w", err)
	}
	available = record.Available()
	if available > product.MinimumStock {
		return nil, m.disarm(ctx, key)
	}

	alert := inventory.NewLowStockAlertEvent(record.ID, key, available, product.MinimumStock)
	m.logger.Warn("Stock at or below minimum",
		zap.String("product_id", key.ProductID.String()),
		zap.String("sku", product.SKU),
		zap.String("branch_id", key.BranchID.String()),
		zap.Int64("available", available),
		zap.Int64("minimum", product.MinimumStock),
	)
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, alert); err != nil {
			m.logger.Error("Failed to publish low-stock alert", zap.Error(err))
		}
	}
	return alert, nil
}

func (m *LowStockMonitor) disarm(ctx context.Context, key inventory.StockKey) error {
	if err := m.state.Disarm(ctx, key); err != nil {
		return fmt.Errorf("clear low-stock state: %w", err)
	}
	return nil
}

var _ shared.EventHandler = (*LowStockMonitor)(nil)
