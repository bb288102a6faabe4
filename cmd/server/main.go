package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	catalogapp "github.com/erp/inventory/internal/application/catalog"
	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/infrastructure/broadcast"
	"github.com/erp/inventory/internal/infrastructure/cache"
	"github.com/erp/inventory/internal/infrastructure/config"
	"github.com/erp/inventory/internal/infrastructure/event"
	"github.com/erp/inventory/internal/infrastructure/logger"
	"github.com/erp/inventory/internal/infrastructure/persistence"
	"github.com/erp/inventory/internal/infrastructure/scheduler"
	"github.com/erp/inventory/internal/interfaces/http/handler"
	"github.com/erp/inventory/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting inventory service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log, cfg.Log.Level)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected",
		zap.String("driver", db.Driver),
		zap.String("isolation", db.Isolation.String()),
	)

	// Redis is optional; it backs the low-stock state and the broadcast relay
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// Repositories
	scope := db.TransactionScope()
	productRepo := persistence.NewGormProductRepository(db.DB)
	branchRepo := persistence.NewGormBranchRepository(db.DB)
	recordRepo := persistence.NewGormInventoryRecordRepository(db.DB)
	movementRepo := persistence.NewGormStockMovementRepository(db.DB)
	reservationRepo := persistence.NewGormReservationRepository(db.DB)

	// Low-stock edge state
	storeOpts := []cache.LowStockStateStoreFactoryOption{
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	}
	if redisClient != nil {
		storeOpts = append(storeOpts, cache.WithRedisClient(redisClient))
	}
	lowStockState, err := cache.NewLowStockStateStoreFactory(cfg.LowStock, storeOpts...).CreateStore()
	if err != nil {
		log.Fatal("Failed to create low-stock state store", zap.Error(err))
	}

	// Branch broadcaster, optionally fanned out across instances through redis
	broadcastOpts := []broadcast.Option{
		broadcast.WithBufferSize(cfg.Broadcast.BufferSize),
		broadcast.WithLogger(log),
	}
	var relay *broadcast.RedisRelay
	if cfg.Broadcast.Relay == "redis" {
		relay = broadcast.NewRedisRelay(redisClient,
			broadcast.WithChannelPrefix(cfg.Broadcast.ChannelPrefix),
			broadcast.WithRelayLogger(log),
		)
		broadcastOpts = append(broadcastOpts, broadcast.WithRelay(relay))
	}
	broadcaster := broadcast.NewBranchBroadcaster(broadcastOpts...)
	if relay != nil {
		relay.Attach(broadcaster)
		go func() {
			if err := relay.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Broadcast relay stopped", zap.Error(err))
			}
		}()
	}

	// Event bus; the forwarder runs before the monitor so subscribers see
	// the change ahead of any alert it causes
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(inventoryapp.NewBranchEventForwarder(broadcaster, log))
	eventBus.Subscribe(inventoryapp.NewLowStockMonitor(recordRepo, productRepo, lowStockState, eventBus, log))
	eventBus.Subscribe(inventoryapp.NewMismatchAlertHandler(log))
	if err := eventBus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	retry := inventoryapp.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}

	// Application services
	inventoryService := inventoryapp.NewInventoryService(scope, recordRepo, movementRepo, productRepo, branchRepo, log)
	inventoryService.SetEventPublisher(eventBus)
	inventoryService.SetRetryPolicy(retry)

	reservationService := inventoryapp.NewReservationService(scope, reservationRepo, inventoryapp.ReservationConfig{
		DefaultTTL:     cfg.Reservation.DefaultTTL,
		MaxTTL:         cfg.Reservation.MaxTTL,
		SweepBatchSize: cfg.Reservation.SweepBatchSize,
	}, log)
	reservationService.SetEventPublisher(eventBus)
	reservationService.SetRetryPolicy(retry)
	reservationService.SetRecordHealer(inventoryService)

	reconciliationService := inventoryapp.NewReconciliationService(scope, eventBus, cfg.Reconciliation.PageSize, log)
	catalogService := catalogapp.NewCatalogService(productRepo, branchRepo, inventoryService, log)

	// Background jobs
	sweeperCfg := scheduler.DefaultReservationSweeperConfig()
	sweeperCfg.Interval = cfg.Reservation.SweepInterval
	sweeperCfg.BatchSize = cfg.Reservation.SweepBatchSize
	sweeper, err := scheduler.NewReservationSweeper(reservationService, sweeperCfg, log)
	if err != nil {
		log.Fatal("Failed to create reservation sweeper", zap.Error(err))
	}
	if err := sweeper.Start(rootCtx); err != nil {
		log.Fatal("Failed to start reservation sweeper", zap.Error(err))
	}

	var reconciliationJob *scheduler.ReconciliationJob
	if cfg.Reconciliation.Enabled {
		jobCfg := scheduler.DefaultReconciliationJobConfig()
		jobCfg.Schedule = cfg.Reconciliation.Schedule
		reconciliationJob, err = scheduler.NewReconciliationJob(reconciliationService, jobCfg, log)
		if err != nil {
			log.Fatal("Failed to create reconciliation job", zap.Error(err))
		}
		if err := reconciliationJob.Start(rootCtx); err != nil {
			log.Fatal("Failed to start reconciliation job", zap.Error(err))
		}
		log.Info("Reconciliation scheduled",
			zap.String("schedule", jobCfg.Schedule),
			zap.Time("next_run", reconciliationJob.NextRun()),
		)
	}

	// HTTP
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	engine := router.NewEngine(router.Handlers{
		Inventory:    handler.NewInventoryHandler(inventoryService),
		Reservations: handler.NewReservationHandler(reservationService),
		Catalog:      handler.NewCatalogHandler(catalogService),
		Maintenance:  handler.NewMaintenanceHandler(reconciliationService, reservationService),
		BranchStream: handler.NewBranchStreamHandler(broadcaster, cfg.Broadcast.Heartbeat),
		Health:       handler.NewHealthHandler(version, checks),
	}, log, router.Options{
		BodyLimit:        cfg.HTTP.MaxBodyBytes,
		StreamsPerClient: cfg.Broadcast.MaxStreams,
	})
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	failed := false
	select {
	case <-rootCtx.Done():
		log.Info("Shutting down server...")
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
		failed = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Closing the broadcaster ends open streams so Shutdown does not wait on them
	broadcaster.Close()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(ctx); err != nil {
		log.Warn("Reservation sweeper did not stop cleanly", zap.Error(err))
	}
	if reconciliationJob != nil {
		if err := reconciliationJob.Stop(ctx); err != nil {
			log.Warn("Reconciliation job did not stop cleanly", zap.Error(err))
		}
	}
	if relay != nil {
		if err := relay.Close(); err != nil {
			log.Warn("Error closing broadcast relay", zap.Error(err))
		}
	}
	if err := eventBus.Stop(ctx); err != nil {
		log.Warn("Error stopping event bus", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	if failed {
		_ = logger.Sync(log)
		os.Exit(1)
	}
}
