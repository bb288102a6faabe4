package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultChannelPrefix prefixes the per-branch Redis channels
	DefaultChannelPrefix = "inventory:branch:"
	defaultCloseTimeout  = 5 * time.Second
)

// RedisRelay fans branch messages out across service instances over Redis Pub/Sub.
// Each instance publishes its local messages on <prefix><branch id> and delivers
// the messages of other instances to its own subscribers.
type RedisRelay struct {
	client      redis.UniversalClient
	prefix      string
	instanceID  string
	broadcaster *BranchBroadcaster
	logger      *zap.Logger

	mu        sync.Mutex
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	isRunning bool
}

// RedisRelayOption is a functional option for configuring the relay
type RedisRelayOption func(*RedisRelay)

// WithChannelPrefix sets the Pub/Sub channel prefix
func WithChannelPrefix(prefix string) RedisRelayOption {
	return func(r *RedisRelay) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRelayLogger sets the logger for the relay
func WithRelayLogger(logger *zap.Logger) RedisRelayOption {
	return func(r *RedisRelay) {
		r.logger = logger
	}
}

// NewRedisRelay creates a relay on an existing client; the caller keeps ownership of client
func NewRedisRelay(client redis.UniversalClient, opts ...RedisRelayOption) *RedisRelay {
	r := &RedisRelay{
		client:     client,
		prefix:     DefaultChannelPrefix,
		instanceID: uuid.NewString(),
		logger:     zap.NewNop(),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach sets the broadcaster that receives remote messages
func (r *RedisRelay) Attach(b *BranchBroadcaster) {
	r.mu.Lock()
	r.broadcaster = b
	r.mu.Unlock()
}

// Channel returns the Pub/Sub channel of a branch
func (r *RedisRelay) Channel(branchID uuid.UUID) string {
	return r.prefix + branchID.String()
}

// Publish sends msg to the other instances, stamped with this instance's id
func (r *RedisRelay) Publish(ctx context.Context, msg Message) error {
	msg.Origin = r.instanceID
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal branch message: %w", err)
	}

	if err := r.client.Publish(ctx, r.Channel(msg.BranchID), data).Err(); err != nil {
		r.logger.Error("Failed to relay branch message",
			zap.String("branch_id", msg.BranchID.String()),
			zap.String("event_type", msg.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to publish branch message: %w", err)
	}
	return nil
}

// Run subscribes to every branch channel and delivers remote messages until ctx
// is done or Close is called. It blocks; call it in a goroutine.
func (r *RedisRelay) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("relay already running")
	}
	r.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	r.cancelFn = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		r.markDone()
	}()

	pubsub := r.client.PSubscribe(subCtx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to branch channels: %w", err)
	}
	r.logger.Info("Subscribed to branch relay channels", zap.String("pattern", r.prefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			r.logger.Info("Branch relay stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("Branch relay channel closed")
				return nil
			}
			r.handle(msg.Channel, msg.Payload)
		}
	}
}

// handle decodes one relayed message and delivers it locally unless this instance sent it
func (r *RedisRelay) handle(channel, payload string) bool {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("Discarding malformed branch message",
			zap.String("channel", channel),
			zap.Error(err))
		return false
	}
	if msg.Origin == r.instanceID {
		return false
	}
	if !strings.HasSuffix(channel, msg.BranchID.String()) {
		r.logger.Warn("Discarding branch message on foreign channel",
			zap.String("channel", channel),
			zap.String("branch_id", msg.BranchID.String()))
		return false
	}

	r.mu.Lock()
	b := r.broadcaster
	r.mu.Unlock()
	if b == nil {
		return false
	}
	b.Deliver(msg)
	return true
}

func (r *RedisRelay) markDone() {
	r.doneOnce.Do(func() {
		close(r.doneCh)
	})
}

// Close stops Run and waits for it to return. The client is not closed.
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	cancelFn := r.cancelFn
	r.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-r.doneCh:
		case <-time.After(defaultCloseTimeout):
			r.logger.Warn("Timeout waiting for branch relay to stop")
		}
	}
	return nil
}

var _ Relay = (*RedisRelay)(nil)
