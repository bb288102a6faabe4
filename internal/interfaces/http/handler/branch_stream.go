package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/erp/inventory/internal/infrastructure/broadcast"
	"github.com/erp/inventory/internal/infrastructure/logger"
	"github.com/erp/inventory/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BranchSubscriber manages branch channel membership
type BranchSubscriber interface {
	Subscribe(connectionID string, branchID uuid.UUID) (*broadcast.Subscription, error)
	Unsubscribe(connectionID string) bool
}

// BranchStreamHandler streams branch events to clients over server-sent events.
// Each stream is one connection joined to one branch; closing it leaves the branch.
type BranchStreamHandler struct {
	BaseHandler
	subscriber BranchSubscriber
	heartbeat  time.Duration
}

// NewBranchStreamHandler creates a new BranchStreamHandler
func NewBranchStreamHandler(subscriber BranchSubscriber, heartbeat time.Duration) *BranchStreamHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &BranchStreamHandler{subscriber: subscriber, heartbeat: heartbeat}
}

// sseEvent is one server-sent event frame
type sseEvent struct {
	Event string
	ID    string
	Data  []byte
}

// Stream joins the caller to a branch channel until the client disconnects
// GET /branches/:id/stream
func (h *BranchStreamHandler) Stream(c *gin.Context) {
	branchID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	log := logger.GetGinLogger(c)

	connectionID := uuid.NewString()
	sub, err := h.subscriber.Subscribe(connectionID, branchID)
	if err != nil {
		if errors.Is(err, broadcast.ErrClosed) {
			h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, "Branch events are shutting down")
			return
		}
		h.HandleError(c, err)
		return
	}
	defer h.subscriber.Unsubscribe(connectionID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	hello, _ := json.Marshal(gin.H{"connectionId": connectionID, "branchId": branchID})
	if err := writeEvent(c.Writer, sseEvent{Event: "connected", Data: hello}); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeEvent(c.Writer, sseEvent{Event: "heartbeat", Data: []byte(`{}`)}); err != nil {
				return
			}
			c.Writer.Flush()
		case msg, open := <-sub.C:
			if !open {
				log.Info("Branch stream closed by broadcaster", zap.String("connection_id", connectionID))
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error("Failed to encode branch event", zap.Error(err))
				continue
			}
			if err := writeEvent(c.Writer, sseEvent{Event: msg.EventType, ID: msg.OccurredAt.Format(time.RFC3339Nano), Data: data}); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev sseEvent) error {
	if ev.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Event); err != nil {
			return err
		}
	}
	if ev.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", ev.Data)
	return err
}

var _ BranchSubscriber = (*broadcast.BranchBroadcaster)(nil)
