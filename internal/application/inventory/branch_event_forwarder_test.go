package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedBranchMessage struct {
	branchID  uuid.UUID
	eventType string
	payload   []byte
}

type fakeBranchPublisher struct {
	messages []capturedBranchMessage
	err      error
}

func (p *fakeBranchPublisher) PublishToBranch(_ context.Context, branchID uuid.UUID, eventType string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, capturedBranchMessage{branchID, eventType, payload})
	return nil
}

func TestBranchEventForwarder_Handle(t *testing.T) {
	ctx := context.Background()
	record, err := inventory.NewInventoryRecord(uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = record.ApplyMovement(9, inventory.MovementTypeReceipt, "", "")
	require.NoError(t, err)
	require.NoError(t, record.Reserve(2))

	t.Run("forwards inventory changes to the branch", func(t *testing.T) {
		pub := &fakeBranchPublisher{}
		fwd := NewBranchEventForwarder(pub, zap.NewNop())

		require.NoError(t, fwd.Handle(ctx, inventory.NewInventoryChangedEvent(record, 0, "")))

		require.Len(t, pub.messages, 1)
		msg := pub.messages[0]
		assert.Equal(t, record.BranchID, msg.branchID)
		assert.Equal(t, inventory.EventTypeInventoryChanged, msg.eventType)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.payload, &payload))
		assert.Equal(t, float64(9), payload["onHand"])
		assert.Equal(t, float64(7), payload["available"])
		assert.Equal(t, record.ProductID.String(), payload["productId"])
	})

	t.Run("forwards low stock alerts", func(t *testing.T) {
		pub := &fakeBranchPublisher{}
		fwd := NewBranchEventForwarder(pub, zap.NewNop())

		require.NoError(t, fwd.Handle(ctx, inventory.NewLowStockAlertEvent(record.ID, record.Key(), 7, 8)))

		require.Len(t, pub.messages, 1)
		assert.Equal(t, inventory.EventTypeLowStockAlert, pub.messages[0].eventType)
		assert.JSONEq(t,
			`{"productId":"`+record.ProductID.String()+`","branchId":"`+record.BranchID.String()+`","available":7,"minimum":8}`,
			string(pub.messages[0].payload))
	})

	t.Run("surfaces publisher errors", func(t *testing.T) {
		fwd := NewBranchEventForwarder(&fakeBranchPublisher{err: errors.New("relay down")}, zap.NewNop())
		assert.Error(t, fwd.Handle(ctx, inventory.NewInventoryChangedEvent(record, 0, "")))
	})
}
