package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BranchPublisher delivers an encoded event to the subscribers of one branch
type BranchPublisher interface {
	PublishToBranch(ctx context.Context, branchID uuid.UUID, eventType string, payload []byte) error
}

// InventoryChangedPayload is the wire form of an InventoryChanged branch event
type InventoryChangedPayload struct {
	ProductID uuid.UUID `json:"productId"`
	BranchID  uuid.UUID `json:"branchId"`
	OnHand    int64     `json:"onHand"`
	Available int64     `json:"available"`
}

// LowStockAlertPayload is the wire form of a LowStockAlert branch event
type LowStockAlertPayload struct {
	ProductID uuid.UUID `json:"productId"`
	BranchID  uuid.UUID `json:"branchId"`
	Available int64     `json:"available"`
	Minimum   int64     `json:"minimum"`
}

// BranchEventForwarder relays committed inventory events to branch subscribers
type BranchEventForwarder struct {
	publisher BranchPublisher
	logger    *zap.Logger
}

// NewBranchEventForwarder creates a new BranchEventForwarder
func NewBranchEventForwarder(publisher BranchPublisher, logger *zap.Logger) *BranchEventForwarder {
	return &BranchEventForwarder{publisher: publisher, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (f *BranchEventForwarder) EventTypes() []string {
	return []string{inventory.EventTypeInventoryChanged, inventory.EventTypeLowStockAlert}
}

// Handle encodes the event and publishes it to its branch
func (f *BranchEventForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	var (
		branchID uuid.UUID
		payload  any
	)
	switch e := event.(type) {
	case *inventory.InventoryChangedEvent:
		branchID = e.BranchID
		payload = InventoryChangedPayload{
			ProductID: e.ProductID,
			BranchID:  e.BranchID,
			OnHand:    e.OnHand,
			Available: e.Available,
		}
	case *inventory.LowStockAlertEvent:
		branchID = e.BranchID
		payload = LowStockAlertPayload{
			ProductID: e.ProductID,
			BranchID:  e.BranchID,
			Available: e.Available,
			Minimum:   e.Minimum,
		}
	default:
		return fmt.Errorf("unexpected event type: %T", event)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.EventType(), err)
	}
	if err := f.publisher.PublishToBranch(ctx, branchID, event.EventType(), data); err != nil {
		f.logger.Warn("Failed to publish branch event",
			zap.String("branch_id", branchID.String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

var _ shared.EventHandler = (*BranchEventForwarder)(nil)
