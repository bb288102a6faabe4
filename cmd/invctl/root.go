package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/infrastructure/broadcast"
	"github.com/erp/inventory/internal/infrastructure/cache"
	"github.com/erp/inventory/internal/infrastructure/config"
	"github.com/erp/inventory/internal/infrastructure/event"
	"github.com/erp/inventory/internal/infrastructure/logger"
	"github.com/erp/inventory/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Reconciler checks every record against its movement ledger
type Reconciler interface {
	Reconcile(ctx context.Context) (*inventoryapp.ReconciliationReport, error)
}

// ExpiryRunner releases reservations past their expiry
type ExpiryRunner interface {
	ExpireDue(ctx context.Context) (*inventoryapp.ExpirySweepStats, error)
}

// Provisioner creates missing zero records
type Provisioner interface {
	EnsureRecordsForProduct(ctx context.Context, productID uuid.UUID) (*inventoryapp.EnsureRecordsResult, error)
	EnsureRecordsForBranch(ctx context.Context, branchID uuid.UUID) (*inventoryapp.EnsureRecordsResult, error)
}

// services is what the commands run against
type services struct {
	Reconciler  Reconciler
	Expiry      ExpiryRunner
	Provisioner Provisioner
	Close       func() error
}

// opener builds the services for one command invocation
type opener func(ctx context.Context, logLevel string) (*services, error)

func newRootCmd(open opener) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "invctl",
		Short:         "Operator commands for the inventory service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	withServices := func(cmd *cobra.Command, fn func(*services) (any, error)) error {
		svc, err := open(cmd.Context(), logLevel)
		if err != nil {
			return err
		}
		defer func() {
			if svc.Close != nil {
				_ = svc.Close()
			}
		}()
		out, err := fn(svc)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	root.AddCommand(
		newReconcileCmd(withServices),
		newSweepCmd(withServices),
		newEnsureRecordsCmd(withServices),
	)
	return root
}

type runner func(cmd *cobra.Command, fn func(*services) (any, error)) error

func newReconcileCmd(run runner) *cobra.Command {
	var failOnMismatch bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare every record with the sum of its movements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var report *inventoryapp.ReconciliationReport
			err := run(cmd, func(svc *services) (any, error) {
				var err error
				report, err = svc.Reconciler.Reconcile(cmd.Context())
				return report, err
			})
			if err != nil {
				return err
			}
			if failOnMismatch && report.HasMismatches() {
				return fmt.Errorf("%d records do not match their ledger", len(report.Mismatches))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnMismatch, "fail-on-mismatch", false, "Exit non-zero when any mismatch is found")
	return cmd
}

func newSweepCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-reservations",
		Short: "Release every pending reservation past its expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(svc *services) (any, error) {
				return svc.Expiry.ExpireDue(cmd.Context())
			})
		},
	}
}

func newEnsureRecordsCmd(run runner) *cobra.Command {
	var productID, branchID string

	cmd := &cobra.Command{
		Use:   "ensure-records",
		Short: "Create missing zero records for a product at every active branch, or for a branch across every active product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if productID != "" {
				id, err := uuid.Parse(productID)
				if err != nil {
					return fmt.Errorf("invalid --product: %w", err)
				}
				return run(cmd, func(svc *services) (any, error) {
					return svc.Provisioner.EnsureRecordsForProduct(cmd.Context(), id)
				})
			}
			id, err := uuid.Parse(branchID)
			if err != nil {
				return fmt.Errorf("invalid --branch: %w", err)
			}
			return run(cmd, func(svc *services) (any, error) {
				return svc.Provisioner.EnsureRecordsForBranch(cmd.Context(), id)
			})
		},
	}
	cmd.Flags().StringVar(&productID, "product", "", "Product ID")
	cmd.Flags().StringVar(&branchID, "branch", "", "Branch ID")
	cmd.MarkFlagsMutuallyExclusive("product", "branch")
	cmd.MarkFlagsOneRequired("product", "branch")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// commandEvents is the event wiring of one command invocation. The broadcaster
// has no local subscribers; with a relay it forwards branch messages to the
// instances that hold the live streams.
type commandEvents struct {
	Bus         *event.InMemoryEventBus
	Broadcaster *broadcast.BranchBroadcaster
	Relayed     bool
}

// newCommandEvents subscribes the handlers in the order the server uses:
// forwarder, low-stock monitor, mismatch alerts.
func newCommandEvents(
	cfg *config.Config,
	records inventory.InventoryRecordRepository,
	products inventory.ProductCatalog,
	redisClient redis.UniversalClient,
	log *zap.Logger,
) (*commandEvents, error) {
	storeOpts := []cache.LowStockStateStoreFactoryOption{
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	}
	if redisClient != nil {
		storeOpts = append(storeOpts, cache.WithRedisClient(redisClient))
	}
	lowStockState, err := cache.NewLowStockStateStoreFactory(cfg.LowStock, storeOpts...).CreateStore()
	if err != nil {
		return nil, fmt.Errorf("create low-stock state store: %w", err)
	}

	ev := &commandEvents{Bus: event.NewInMemoryEventBus(log)}
	broadcastOpts := []broadcast.Option{broadcast.WithLogger(log)}
	if cfg.Broadcast.Relay == "redis" && redisClient != nil {
		broadcastOpts = append(broadcastOpts, broadcast.WithRelay(broadcast.NewRedisRelay(redisClient,
			broadcast.WithChannelPrefix(cfg.Broadcast.ChannelPrefix),
			broadcast.WithRelayLogger(log),
		)))
		ev.Relayed = true
	}
	ev.Broadcaster = broadcast.NewBranchBroadcaster(broadcastOpts...)

	ev.Bus.Subscribe(inventoryapp.NewBranchEventForwarder(ev.Broadcaster, log))
	ev.Bus.Subscribe(inventoryapp.NewLowStockMonitor(records, products, lowStockState, ev.Bus, log))
	ev.Bus.Subscribe(inventoryapp.NewMismatchAlertHandler(log))
	return ev, nil
}

// openServices wires the services against the configured database, and
// against Redis when the low-stock state or the broadcast relay live there.
func openServices(ctx context.Context, logLevel string) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	db, err := persistence.NewDatabase(&cfg.Database, log, logLevel)
	if err != nil {
		return nil, err
	}

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		redisClient = client
	}
	closeAll := func() error {
		_ = logger.Sync(log)
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
			return err
		}
		return nil
	}

	scope := db.TransactionScope()
	productRepo := persistence.NewGormProductRepository(db.DB)
	branchRepo := persistence.NewGormBranchRepository(db.DB)
	recordRepo := persistence.NewGormInventoryRecordRepository(db.DB)

	events, err := newCommandEvents(cfg, recordRepo, productRepo, redisClient, log)
	if err != nil {
		_ = closeAll()
		return nil, err
	}
	bus := events.Bus

	retry := inventoryapp.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}

	inventoryService := inventoryapp.NewInventoryService(
		scope,
		recordRepo,
		persistence.NewGormStockMovementRepository(db.DB),
		productRepo,
		branchRepo,
		log,
	)
	inventoryService.SetEventPublisher(bus)
	inventoryService.SetRetryPolicy(retry)

	reservationService := inventoryapp.NewReservationService(
		scope,
		persistence.NewGormReservationRepository(db.DB),
		inventoryapp.ReservationConfig{
			DefaultTTL:     cfg.Reservation.DefaultTTL,
			MaxTTL:         cfg.Reservation.MaxTTL,
			SweepBatchSize: cfg.Reservation.SweepBatchSize,
		},
		log,
	)
	reservationService.SetEventPublisher(bus)
	reservationService.SetRetryPolicy(retry)
	reservationService.SetRecordHealer(inventoryService)

	return &services{
		Reconciler:  inventoryapp.NewReconciliationService(scope, bus, cfg.Reconciliation.PageSize, log),
		Expiry:      reservationService,
		Provisioner: inventoryService,
		Close: func() error {
			events.Broadcaster.Close()
			return closeAll()
		},
	}, nil
}
