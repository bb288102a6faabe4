package logger

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	actorKey
	stockScopeKey
)

// StockScope is the product and branch a request reads or changes.
// Either side may be empty, e.g. for branch-wide reports.
type StockScope struct {
	ProductID string
	BranchID  string
}

// Fields returns the scope as log fields, leaving out empty sides
func (s StockScope) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if s.ProductID != "" {
		fields = append(fields, zap.String("product_id", s.ProductID))
	}
	if s.BranchID != "" {
		fields = append(fields, zap.String("branch_id", s.BranchID))
	}
	return fields
}

// IsZero reports whether neither side is set
func (s StockScope) IsZero() bool {
	return s.ProductID == "" && s.BranchID == ""
}

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, returns a no-op logger if not found
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID so that SQL traces can name the request
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithActor adds the acting client to context
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the actor recorded on stock movements
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok {
		return actor
	}
	return ""
}

// WithStockScope narrows ctx to a stock pair. Sides left empty keep the
// value of an enclosing scope.
func WithStockScope(ctx context.Context, scope StockScope) context.Context {
	prev := GetStockScope(ctx)
	if scope.ProductID == "" {
		scope.ProductID = prev.ProductID
	}
	if scope.BranchID == "" {
		scope.BranchID = prev.BranchID
	}
	if scope == prev {
		return ctx
	}
	return context.WithValue(ctx, stockScopeKey, scope)
}

// GetStockScope returns the stock pair ctx was narrowed to, if any
func GetStockScope(ctx context.Context) StockScope {
	scope, _ := ctx.Value(stockScopeKey).(StockScope)
	return scope
}

// L returns the context logger with the actor and stock pair attached.
// Loggers from GinMiddleware already carry the request ID.
func L(ctx context.Context) *zap.Logger {
	fields := GetStockScope(ctx).Fields()
	if actor := GetActor(ctx); actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}
	return FromContext(ctx).With(fields...)
}
