package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

var errSerialization = errors.New("could not serialize access")

func recordQuery() (string, int64) {
	return `SELECT * FROM "inventory_records" WHERE product_id = $1 AND branch_id = $2 FOR UPDATE`, 1
}

func TestGormLogger_Options(t *testing.T) {
	gormLog := NewGormLogger(zap.NewNop(), gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)

	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
	assert.Equal(t, 500*time.Millisecond, gormLog.slowThreshold)
	assert.False(t, gormLog.ignoreRecordNotFoundError)

	warn, ok := gormLog.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, warn.logLevel)
	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		opts      []GormLoggerOption
		elapsed   time.Duration
		err       error
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{
			name:      "error",
			level:     gormlogger.Error,
			err:       errors.New("connection reset"),
			wantLevel: zapcore.ErrorLevel,
			wantMsg:   "Inventory query failed",
		},
		{
			name:      "expected abort is a warning",
			level:     gormlogger.Error,
			opts:      []GormLoggerOption{WithExpectedErrors(func(err error) bool { return errors.Is(err, errSerialization) })},
			err:       errSerialization,
			wantLevel: zapcore.WarnLevel,
			wantMsg:   "Inventory transaction aborted",
		},
		{
			name:      "slow query",
			level:     gormlogger.Warn,
			opts:      []GormLoggerOption{WithSlowThreshold(10 * time.Millisecond)},
			elapsed:   50 * time.Millisecond,
			wantLevel: zapcore.WarnLevel,
			wantMsg:   "Slow inventory query",
		},
		{
			name:      "normal query",
			level:     gormlogger.Info,
			wantLevel: zapcore.DebugLevel,
			wantMsg:   "Inventory query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			gormLog := NewGormLogger(zap.New(core), tt.level, tt.opts...)

			gormLog.Trace(context.Background(), time.Now().Add(-tt.elapsed), recordQuery, tt.err)

			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.wantLevel, logs[0].Level)
			assert.Equal(t, tt.wantMsg, logs[0].Message)
		})
	}
}

func TestGormLogger_Trace_Suppressed(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	NewGormLogger(zap.New(core), gormlogger.Error).
		Trace(context.Background(), time.Now(), recordQuery, gormlogger.ErrRecordNotFound)
	NewGormLogger(zap.New(core), gormlogger.Silent).
		Trace(context.Background(), time.Now(), recordQuery, errors.New("boom"))

	assert.Empty(t, recorded.All())
}

func TestGormLogger_Trace_CarriesRequestScope(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gormLog := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))
	ctx := WithRequestID(context.Background(), "req-42")
	ctx = WithActor(ctx, "pos-terminal-3")
	ctx = WithStockScope(ctx, StockScope{ProductID: "prod-1", BranchID: "branch-9"})

	gormLog.Trace(ctx, time.Now().Add(-50*time.Millisecond), recordQuery, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "Slow inventory query", logs[0].Message)
	fields := logs[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "pos-terminal-3", fields["actor"])
	assert.Equal(t, "prod-1", fields["product_id"])
	assert.Equal(t, "branch-9", fields["branch_id"])
	assert.Equal(t, 10*time.Millisecond, fields["threshold"])
}

func TestGormLogger_Trace_NoScope(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	NewGormLogger(zap.New(core), gormlogger.Info).Trace(context.Background(), time.Now(), recordQuery, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.NotContains(t, logs[0].ContextMap(), "product_id")
	assert.NotContains(t, logs[0].ContextMap(), "request_id")
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
