package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/redis/go-redis/v9"
)

// DefaultLowStockKeyPrefix namespaces the Redis keys of armed low-stock alerts
const DefaultLowStockKeyPrefix = "inventory:lowstock:"

// InMemoryLowStockStateStore keeps low-stock edge state in a process-local set.
// It is suitable for single-instance deployments and testing.
type InMemoryLowStockStateStore struct {
	mu    sync.Mutex
	armed map[inventory.StockKey]struct{}
}

// NewInMemoryLowStockStateStore creates an empty store
func NewInMemoryLowStockStateStore() *InMemoryLowStockStateStore {
	return &InMemoryLowStockStateStore{armed: make(map[inventory.StockKey]struct{})}
}

// Arm marks key as low and reports whether it was not already marked
func (s *InMemoryLowStockStateStore) Arm(_ context.Context, key inventory.StockKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.armed[key]; ok {
		return false, nil
	}
	s.armed[key] = struct{}{}
	return true, nil
}

// Disarm clears the low mark for key
func (s *InMemoryLowStockStateStore) Disarm(_ context.Context, key inventory.StockKey) error {
	s.mu.Lock()
	delete(s.armed, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of armed keys
func (s *InMemoryLowStockStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

// RedisLowStockStateStore shares low-stock edge state between service instances.
// Arm is a SETNX, so exactly one instance alerts per crossing.
type RedisLowStockStateStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisLowStockStateStore creates a store on an existing client
func NewRedisLowStockStateStore(client redis.UniversalClient, keyPrefix string) *RedisLowStockStateStore {
	if keyPrefix == "" {
		keyPrefix = DefaultLowStockKeyPrefix
	}
	return &RedisLowStockStateStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisLowStockStateStore) redisKey(key inventory.StockKey) string {
	return s.keyPrefix + key.BranchID.String() + ":" + key.ProductID.String()
}

// Arm marks key as low. The mark has no TTL: it lives until the next disarm.
func (s *RedisLowStockStateStore) Arm(ctx context.Context, key inventory.StockKey) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.redisKey(key), "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to arm low-stock state: %w", err)
	}
	return ok, nil
}

// Disarm clears the low mark for key
func (s *RedisLowStockStateStore) Disarm(ctx context.Context, key inventory.StockKey) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to disarm low-stock state: %w", err)
	}
	return nil
}

var (
	_ inventory.LowStockStateStore = (*InMemoryLowStockStateStore)(nil)
	_ inventory.LowStockStateStore = (*RedisLowStockStateStore)(nil)
)
