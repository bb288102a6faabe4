package integration

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/erp/inventory/internal/infrastructure/cache"
	"github.com/erp/inventory/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedRedis       testcontainers.Container
	sharedRedisMu     sync.Mutex
	sharedRedisConfig config.RedisConfig
)

// NewTestRedis returns a client for the shared Redis container with its database flushed
func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := startRedis(t)
	ctx := context.Background()

	client, err := cache.NewRedisClient(ctx, cfg)
	require.NoError(t, err, "Failed to connect to redis")
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()

	sharedRedisMu.Lock()
	defer sharedRedisMu.Unlock()

	if sharedRedis != nil {
		return sharedRedisConfig
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	sharedRedis = container
	sharedRedisConfig = config.RedisConfig{Enabled: true, Host: host, Port: portNum}
	return sharedRedisConfig
}

// CleanupSharedRedis terminates the shared Redis container. Call it from TestMain.
func CleanupSharedRedis() {
	sharedRedisMu.Lock()
	defer sharedRedisMu.Unlock()

	if sharedRedis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sharedRedis.Terminate(ctx)
		sharedRedis = nil
	}
}
