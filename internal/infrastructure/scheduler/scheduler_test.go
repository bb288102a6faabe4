package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	appinv "github.com/erp/inventory/internal/application/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExpiryRunner struct {
	mu      sync.Mutex
	batches []appinv.ExpirySweepStats
	calls   atomic.Int32
	err     error
}

func (f *fakeExpiryRunner) ExpireDue(context.Context) (*appinv.ExpirySweepStats, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return &appinv.ExpirySweepStats{}, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return &next, nil
}

func TestNewReservationSweeper_InvalidInterval(t *testing.T) {
	_, err := NewReservationSweeper(&fakeExpiryRunner{}, ReservationSweeperConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReservationSweeper_RunOnce(t *testing.T) {
	cfg := ReservationSweeperConfig{Interval: time.Minute, BatchSize: 2}

	t.Run("full batch asks for another sweep", func(t *testing.T) {
		runner := &fakeExpiryRunner{batches: []appinv.ExpirySweepStats{{Found: 2, Expired: 2}}}
		s, err := NewReservationSweeper(runner, cfg, zap.NewNop())
		require.NoError(t, err)
		assert.True(t, s.RunOnce(context.Background()))
	})

	t.Run("partial batch drained the backlog", func(t *testing.T) {
		runner := &fakeExpiryRunner{batches: []appinv.ExpirySweepStats{{Found: 1, Expired: 1}}}
		s, err := NewReservationSweeper(runner, cfg, zap.NewNop())
		require.NoError(t, err)
		assert.False(t, s.RunOnce(context.Background()))
	})

	t.Run("failures wait for the next tick", func(t *testing.T) {
		runner := &fakeExpiryRunner{batches: []appinv.ExpirySweepStats{{Found: 2, Expired: 1, Failed: 1}}}
		s, err := NewReservationSweeper(runner, cfg, zap.NewNop())
		require.NoError(t, err)
		assert.False(t, s.RunOnce(context.Background()))
	})

	t.Run("runner error", func(t *testing.T) {
		s, err := NewReservationSweeper(&fakeExpiryRunner{err: errors.New("db down")}, cfg, zap.NewNop())
		require.NoError(t, err)
		assert.False(t, s.RunOnce(context.Background()))
	})
}

func TestReservationSweeper_StartStop(t *testing.T) {
	runner := &fakeExpiryRunner{}
	s, err := NewReservationSweeper(runner, ReservationSweeperConfig{Interval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "second stop is a no-op")

	calls := runner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, runner.calls.Load(), "no sweeps after stop")
}

type fakeReconciler struct {
	calls  atomic.Int32
	report *appinv.ReconciliationReport
	err    error
}

func (f *fakeReconciler) Reconcile(context.Context) (*appinv.ReconciliationReport, error) {
	f.calls.Add(1)
	return f.report, f.err
}

func TestNewReconciliationJob_InvalidSchedule(t *testing.T) {
	_, err := NewReconciliationJob(&fakeReconciler{}, ReconciliationJobConfig{Schedule: "every tuesday"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReconciliationJob_RunNow(t *testing.T) {
	now := time.Now()
	report := &appinv.ReconciliationReport{
		CheckedRecords: 4,
		Mismatches:     []appinv.MismatchItem{},
		StartedAt:      now,
		FinishedAt:     now.Add(time.Second),
	}
	reconciler := &fakeReconciler{report: report}
	job, err := NewReconciliationJob(reconciler, DefaultReconciliationJobConfig(), zap.NewNop())
	require.NoError(t, err)

	got, err := job.RunNow(context.Background())
	require.NoError(t, err)
	assert.Same(t, report, got)
	assert.Same(t, report, job.LastReport())

	reconciler.err = errors.New("db down")
	_, err = job.RunNow(context.Background())
	assert.Error(t, err)
	assert.Same(t, report, job.LastReport(), "a failed run keeps the previous report")
}

func TestReconciliationJob_StartStop(t *testing.T) {
	job, err := NewReconciliationJob(&fakeReconciler{}, ReconciliationJobConfig{Schedule: "0 3 * * *"}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, job.Start(context.Background()))
	next := job.NextRun()
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, job.Stop(ctx))
}
