// Package broadcast fans committed inventory events out to live branch subscribers.
//
// Delivery is best-effort and at-most-once per connection: a subscriber whose
// buffer is full misses the message, and nothing is replayed after a reconnect.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBufferSize is the per-subscriber queue length
const DefaultBufferSize = 100

// ErrClosed is returned by Subscribe after Close
var ErrClosed = errors.New("broadcaster closed")

// Message is one event addressed to a branch
type Message struct {
	BranchID   uuid.UUID       `json:"branchId"`
	EventType  string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
	Origin     string          `json:"origin,omitempty"`
}

// Relay forwards locally published messages to other service instances
type Relay interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscription is one connection's membership in a branch channel.
// C is closed when the subscription ends.
type Subscription struct {
	ConnectionID string
	BranchID     uuid.UUID
	C            <-chan Message

	ch      chan Message
	dropped atomic.Int64
}

// Dropped returns how many messages this subscriber missed because its buffer was full
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// BranchBroadcaster owns the branch subscriber membership of one process
type BranchBroadcaster struct {
	mu          sync.RWMutex
	connections map[string]*Subscription
	branches    map[uuid.UUID]map[string]*Subscription
	closed      bool

	bufferSize int
	relay      Relay
	logger     *zap.Logger
}

// Option configures a BranchBroadcaster
type Option func(*BranchBroadcaster)

// WithBufferSize sets the per-subscriber queue length
func WithBufferSize(n int) Option {
	return func(b *BranchBroadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithRelay forwards every local publish to other instances
func WithRelay(relay Relay) Option {
	return func(b *BranchBroadcaster) {
		b.relay = relay
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *BranchBroadcaster) {
		b.logger = logger
	}
}

// NewBranchBroadcaster creates an empty broadcaster
func NewBranchBroadcaster(opts ...Option) *BranchBroadcaster {
	b := &BranchBroadcaster{
		connections: make(map[string]*Subscription),
		branches:    make(map[uuid.UUID]map[string]*Subscription),
		bufferSize:  DefaultBufferSize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe joins connectionID to branchID's channel. A connection holds at most
// one membership; subscribing it again is ALREADY_EXISTS.
func (b *BranchBroadcaster) Subscribe(connectionID string, branchID uuid.UUID) (*Subscription, error) {
	if connectionID == "" || branchID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Connection id and branch id are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.connections[connectionID]; ok {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Connection "+connectionID+" is already subscribed")
	}

	ch := make(chan Message, b.bufferSize)
	sub := &Subscription{ConnectionID: connectionID, BranchID: branchID, C: ch, ch: ch}
	b.connections[connectionID] = sub
	members, ok := b.branches[branchID]
	if !ok {
		members = make(map[string]*Subscription)
		b.branches[branchID] = members
	}
	members[connectionID] = sub

	b.logger.Debug("Branch subscriber joined",
		zap.String("connection_id", connectionID),
		zap.String("branch_id", branchID.String()),
		zap.Int("members", len(members)),
	)
	return sub, nil
}

// Unsubscribe removes connectionID from its channel and closes its queue.
// It reports whether the connection was subscribed; repeating it is a no-op.
func (b *BranchBroadcaster) Unsubscribe(connectionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.connections[connectionID]
	if !ok {
		return false
	}
	b.remove(sub)
	b.logger.Debug("Branch subscriber left",
		zap.String("connection_id", connectionID),
		zap.String("branch_id", sub.BranchID.String()),
		zap.Int64("dropped", sub.dropped.Load()),
	)
	return true
}

// remove must be called with mu held
func (b *BranchBroadcaster) remove(sub *Subscription) {
	delete(b.connections, sub.ConnectionID)
	if members, ok := b.branches[sub.BranchID]; ok {
		delete(members, sub.ConnectionID)
		if len(members) == 0 {
			delete(b.branches, sub.BranchID)
		}
	}
	close(sub.ch)
}

// PublishToBranch delivers an event to the local subscribers of branchID and
// hands it to the relay, if any. A relay failure is returned after local delivery.
func (b *BranchBroadcaster) PublishToBranch(ctx context.Context, branchID uuid.UUID, eventType string, payload []byte) error {
	msg := Message{
		BranchID:   branchID,
		EventType:  eventType,
		Payload:    json.RawMessage(payload),
		OccurredAt: time.Now(),
	}
	b.Deliver(msg)

	if b.relay != nil {
		return b.relay.Publish(ctx, msg)
	}
	return nil
}

// Deliver fans msg out to the local subscribers of its branch without blocking.
// It returns the number of subscribers that received it.
func (b *BranchBroadcaster) Deliver(msg Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.branches[msg.BranchID] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			sub.dropped.Add(1)
			b.logger.Debug("Dropped branch event for slow subscriber",
				zap.String("connection_id", sub.ConnectionID),
				zap.String("branch_id", msg.BranchID.String()),
				zap.String("event_type", msg.EventType),
			)
		}
	}
	return delivered
}

// SubscriberCount returns the number of connections joined to branchID
func (b *BranchBroadcaster) SubscriberCount(branchID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.branches[branchID])
}

// Close ends every subscription. Later Subscribe calls fail with ErrClosed.
func (b *BranchBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.connections {
		b.remove(sub)
	}
	b.closed = true
}
