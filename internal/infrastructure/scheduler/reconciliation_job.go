package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	appinv "github.com/erp/inventory/internal/application/inventory"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reconciler checks every record against its ledger
type Reconciler interface {
	Reconcile(ctx context.Context) (*appinv.ReconciliationReport, error)
}

// ReconciliationJobConfig holds configuration for the scheduled ledger check
type ReconciliationJobConfig struct {
	// Schedule is a standard five-field cron expression
	Schedule string

	// RunTimeout bounds a single run
	RunTimeout time.Duration
}

// DefaultReconciliationJobConfig runs at 03:00 every day
func DefaultReconciliationJobConfig() ReconciliationJobConfig {
	return ReconciliationJobConfig{
		Schedule:   "0 3 * * *",
		RunTimeout: time.Hour,
	}
}

// ReconciliationJob runs ledger reconciliation on a cron schedule.
// Overlapping runs are skipped, not queued.
type ReconciliationJob struct {
	reconciler Reconciler
	config     ReconciliationJobConfig
	logger     *zap.Logger
	cron       *cron.Cron

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	lastRun   *appinv.ReconciliationReport
}

// NewReconciliationJob validates the schedule and creates a stopped job
func NewReconciliationJob(reconciler Reconciler, config ReconciliationJobConfig, logger *zap.Logger) (*ReconciliationJob, error) {
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("%w: reconciliation schedule %q: %v", ErrInvalidConfig, config.Schedule, err)
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultReconciliationJobConfig().RunTimeout
	}

	cronLog := cronLogger{logger: logger.Named("cron")}
	job := &ReconciliationJob{
		reconciler: reconciler,
		config:     config,
		logger:     logger,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
	if _, err := job.cron.AddFunc(config.Schedule, job.run); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return job, nil
}

// Start starts the cron scheduler; ctx cancels in-flight runs on shutdown
func (j *ReconciliationJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.isRunning {
		return nil
	}
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.isRunning = true
	j.cron.Start()

	j.logger.Info("Reconciliation job scheduled",
		zap.String("schedule", j.config.Schedule),
		zap.Time("next_run", j.NextRun()),
	)
	return nil
}

// Stop stops scheduling and waits for a running check, bounded by ctx
func (j *ReconciliationJob) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.isRunning {
		j.mu.Unlock()
		return nil
	}
	j.isRunning = false
	cancel := j.cancel
	j.mu.Unlock()

	stopped := j.cron.Stop()
	cancel()

	select {
	case <-stopped.Done():
		j.logger.Info("Reconciliation job stopped gracefully")
		return nil
	case <-ctx.Done():
		j.logger.Warn("Reconciliation job stop timed out")
		return ctx.Err()
	}
}

// NextRun returns the next scheduled time, or zero when not started
func (j *ReconciliationJob) NextRun() time.Time {
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastReport returns the report of the most recent successful run
func (j *ReconciliationJob) LastReport() *appinv.ReconciliationReport {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}

func (j *ReconciliationJob) run() {
	j.mu.Lock()
	parent := j.ctx
	j.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	_, _ = j.RunNow(parent)
}

// RunNow performs one reconciliation outside the schedule
func (j *ReconciliationJob) RunNow(ctx context.Context) (*appinv.ReconciliationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, j.config.RunTimeout)
	defer cancel()

	report, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		j.logger.Error("Scheduled reconciliation failed", zap.Error(err))
		return nil, err
	}

	j.mu.Lock()
	j.lastRun = report
	j.mu.Unlock()

	j.logger.Info("Scheduled reconciliation finished",
		zap.Int("checked_records", report.CheckedRecords),
		zap.Int("mismatches", len(report.Mismatches)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
