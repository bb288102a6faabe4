package inventory

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/inventory/internal/domain/shared"
	"go.uber.org/zap"
)

// RetryPolicy bounds retries of transient store failures
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns three attempts starting at 50ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Read retries op on any transient error; reads have no side effects
func (p RetryPolicy) Read(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	return p.run(ctx, logger, op, shared.IsTransient, fn)
}

// Mutate retries op only when the store aborted the transaction cleanly
func (p RetryPolicy) Mutate(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	return p.run(ctx, logger, op, shared.IsCleanAbort, fn)
}

func (p RetryPolicy) run(ctx context.Context, logger *zap.Logger, op string, retryable func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		if logger != nil {
			logger.Warn("Retrying inventory store operation",
				zap.String("operation", op),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		}
	})
}
