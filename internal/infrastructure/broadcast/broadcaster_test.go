package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRelay struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingRelay) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestBranchBroadcaster_PublishReachesOnlyBranchMembers(t *testing.T) {
	ctx := context.Background()
	b := NewBranchBroadcaster()
	north, south := uuid.New(), uuid.New()

	a, err := b.Subscribe("conn-a", north)
	require.NoError(t, err)
	c, err := b.Subscribe("conn-c", north)
	require.NoError(t, err)
	s, err := b.Subscribe("conn-s", south)
	require.NoError(t, err)

	require.NoError(t, b.PublishToBranch(ctx, north, "InventoryChanged", []byte(`{"onHand":4}`)))

	for _, sub := range []*Subscription{a, c} {
		select {
		case msg := <-sub.C:
			assert.Equal(t, north, msg.BranchID)
			assert.Equal(t, "InventoryChanged", msg.EventType)
			assert.JSONEq(t, `{"onHand":4}`, string(msg.Payload))
		default:
			t.Fatalf("%s received nothing", sub.ConnectionID)
		}
	}
	assert.Empty(t, s.C, "other branches are not notified")
	assert.Equal(t, 2, b.SubscriberCount(north))
}

func TestBranchBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBranchBroadcaster()
	branch := uuid.New()

	sub, err := b.Subscribe("conn-1", branch)
	require.NoError(t, err)

	assert.True(t, b.Unsubscribe("conn-1"))
	assert.False(t, b.Unsubscribe("conn-1"), "second unsubscribe is a no-op")
	assert.Equal(t, 0, b.SubscriberCount(branch))

	_, open := <-sub.C
	assert.False(t, open, "queue is closed on unsubscribe")

	assert.Equal(t, 0, b.Deliver(Message{BranchID: branch, EventType: "InventoryChanged"}))

	_, err = b.Subscribe("conn-1", branch)
	assert.NoError(t, err, "a connection id can rejoin after leaving")
}

func TestBranchBroadcaster_Subscribe_Validation(t *testing.T) {
	b := NewBranchBroadcaster()
	branch := uuid.New()

	_, err := b.Subscribe("", branch)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = b.Subscribe("conn", uuid.Nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = b.Subscribe("conn", branch)
	require.NoError(t, err)
	_, err = b.Subscribe("conn", uuid.New())
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestBranchBroadcaster_SlowSubscriberDrops(t *testing.T) {
	b := NewBranchBroadcaster(WithBufferSize(2))
	branch := uuid.New()

	slow, err := b.Subscribe("slow", branch)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		b.Deliver(Message{BranchID: branch, EventType: "InventoryChanged"})
	}

	assert.Len(t, slow.C, 2)
	assert.Equal(t, int64(3), slow.Dropped())
}

func TestBranchBroadcaster_Relay(t *testing.T) {
	ctx := context.Background()
	relay := &recordingRelay{}
	b := NewBranchBroadcaster(WithRelay(relay))
	branch := uuid.New()

	payload, _ := json.Marshal(map[string]int{"available": 1})
	require.NoError(t, b.PublishToBranch(ctx, branch, "LowStockAlert", payload))

	require.Len(t, relay.msgs, 1)
	assert.Equal(t, branch, relay.msgs[0].BranchID)
	assert.Equal(t, "LowStockAlert", relay.msgs[0].EventType)

	relay.err = errors.New("redis down")
	sub, err := b.Subscribe("conn", branch)
	require.NoError(t, err)
	assert.Error(t, b.PublishToBranch(ctx, branch, "LowStockAlert", payload))
	assert.Len(t, sub.C, 1, "local delivery happens before the relay")
}

func TestBranchBroadcaster_Close(t *testing.T) {
	b := NewBranchBroadcaster()
	sub, err := b.Subscribe("conn", uuid.New())
	require.NoError(t, err)

	b.Close()

	_, open := <-sub.C
	assert.False(t, open)
	_, err = b.Subscribe("other", uuid.New())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBranchBroadcaster_ConcurrentUse(t *testing.T) {
	b := NewBranchBroadcaster(WithBufferSize(1))
	branch := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		id := uuid.NewString()
		go func() {
			defer wg.Done()
			if _, err := b.Subscribe(id, branch); err == nil {
				b.Unsubscribe(id)
			}
		}()
		go func() {
			defer wg.Done()
			b.Deliver(Message{BranchID: branch, EventType: "InventoryChanged"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.SubscriberCount(branch))
}
