package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	appinv "github.com/erp/inventory/internal/application/inventory"
	"go.uber.org/zap"
)

// ExpiryRunner expires one batch of due reservations
type ExpiryRunner interface {
	ExpireDue(ctx context.Context) (*appinv.ExpirySweepStats, error)
}

// ReservationSweeperConfig holds configuration for the reservation sweeper
type ReservationSweeperConfig struct {
	// Interval between sweeps
	Interval time.Duration

	// RunTimeout bounds a single sweep
	RunTimeout time.Duration

	// BatchSize is the runner's batch limit. A sweep that found a full batch
	// with no failures is followed immediately by another.
	BatchSize int
}

// DefaultReservationSweeperConfig returns default configuration
func DefaultReservationSweeperConfig() ReservationSweeperConfig {
	return ReservationSweeperConfig{
		Interval:   30 * time.Second,
		RunTimeout: 25 * time.Second,
		BatchSize:  100,
	}
}

// ReservationSweeper expires due reservations on a fixed interval
type ReservationSweeper struct {
	runner ExpiryRunner
	config ReservationSweeperConfig
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewReservationSweeper creates a new sweeper
func NewReservationSweeper(runner ExpiryRunner, config ReservationSweeperConfig, logger *zap.Logger) (*ReservationSweeper, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: sweep interval must be positive", ErrInvalidConfig)
	}
	if config.RunTimeout <= 0 || config.RunTimeout > config.Interval {
		config.RunTimeout = config.Interval
	}
	return &ReservationSweeper{runner: runner, config: config, logger: logger}, nil
}

// Start launches the sweep loop; it returns immediately
func (s *ReservationSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Reservation sweeper started", zap.Duration("interval", s.config.Interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep, bounded by ctx
func (s *ReservationSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reservation sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reservation sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *ReservationSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for s.RunOnce(ctx) && ctx.Err() == nil {
			}
		}
	}
}

// RunOnce performs one sweep and reports whether more due reservations may remain
func (s *ReservationSweeper) RunOnce(ctx context.Context) bool {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	stats, err := s.runner.ExpireDue(runCtx)
	if err != nil {
		s.logger.Error("Reservation sweep failed", zap.Error(err))
		return false
	}
	s.logger.Debug("Reservation sweep finished",
		zap.Int("found", stats.Found),
		zap.Int("expired", stats.Expired),
	)
	return s.config.BatchSize > 0 && stats.Found >= s.config.BatchSize && stats.Failed == 0
}
