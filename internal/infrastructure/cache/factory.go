package cache

import (
	"fmt"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LowStockStateStoreFactory picks the low-stock state backend from configuration
type LowStockStateStoreFactory struct {
	cfg                   config.LowStockConfig
	client                redis.UniversalClient
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LowStockStateStoreFactoryOption is a functional option for configuring the factory
type LowStockStateStoreFactoryOption func(*LowStockStateStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LowStockStateStoreFactoryOption {
	return func(f *LowStockStateStoreFactory) {
		f.logger = logger
	}
}

// WithRedisClient supplies the client used by the redis backend
func WithRedisClient(client redis.UniversalClient) LowStockStateStoreFactoryOption {
	return func(f *LowStockStateStoreFactory) {
		f.client = client
	}
}

// WithInMemoryFallback controls whether a missing Redis client degrades to the in-memory store.
// Default is false: with several instances, in-memory state alerts once per instance.
func WithInMemoryFallback(allow bool) LowStockStateStoreFactoryOption {
	return func(f *LowStockStateStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLowStockStateStoreFactory creates a new factory
func NewLowStockStateStoreFactory(cfg config.LowStockConfig, opts ...LowStockStateStoreFactoryOption) *LowStockStateStoreFactory {
	f := &LowStockStateStoreFactory{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore builds the configured store
func (f *LowStockStateStoreFactory) CreateStore() (inventory.LowStockStateStore, error) {
	switch f.cfg.StateBackend {
	case "", "memory":
		f.logger.Info("Using in-memory low-stock state store")
		return NewInMemoryLowStockStateStore(), nil
	case "redis":
		if f.client != nil {
			f.logger.Info("Using Redis low-stock state store", zap.String("key_prefix", f.cfg.KeyPrefix))
			return NewRedisLowStockStateStore(f.client, f.cfg.KeyPrefix), nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("low_stock.state_backend is redis but no Redis client is available")
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory low-stock state store; " +
			"alerts may repeat across instances")
		return NewInMemoryLowStockStateStore(), nil
	default:
		return nil, fmt.Errorf("unknown low-stock state backend %q", f.cfg.StateBackend)
	}
}
