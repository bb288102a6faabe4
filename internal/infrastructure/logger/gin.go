package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinMiddleware logs each request with the stock pair its route names.
// The request context carries the request ID and pair for SQL traces.
// Branch streams are logged when they open and again when they close.
func GinMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		requestID := c.GetString("request_id")
		scope := routeScope(c)

		fields := append([]zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		}, scope.Fields()...)
		reqLogger := logger.With(fields...)
		c.Set("logger", reqLogger)

		ctx := WithRequestID(c.Request.Context(), requestID)
		if !scope.IsZero() {
			ctx = WithStockScope(ctx, scope)
		}
		c.Request = c.Request.WithContext(WithContext(ctx, reqLogger))

		streaming := strings.HasSuffix(path, "/stream")
		if streaming {
			reqLogger.Info("Branch stream opened", zap.String("client_ip", c.ClientIP()))
		}

		c.Next()

		status := c.Writer.Status()
		done := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			done = append(done, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			done = append(done, zap.Strings("errors", c.Errors.Errors()))
		}

		msg := "HTTP Request"
		if streaming {
			msg = "Branch stream closed"
		}
		switch {
		case status >= 500:
			reqLogger.Error(msg, done...)
		case status >= 400:
			reqLogger.Warn(msg, done...)
		default:
			reqLogger.Info(msg, done...)
		}
	}
}

// routeScope reads the stock pair from the matched route's parameters.
// Branch and product routes name their subject :id.
func routeScope(c *gin.Context) StockScope {
	scope := StockScope{ProductID: c.Param("product_id"), BranchID: c.Param("branch_id")}
	route := c.FullPath()
	switch {
	case strings.Contains(route, "/branches/:id"):
		scope.BranchID = c.Param("id")
	case strings.Contains(route, "/products/:id"):
		scope.ProductID = c.Param("id")
	}
	return scope
}

// Recovery turns a panic into a 500 envelope and logs it with the request's pair
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				fields := append([]zap.Field{
					zap.String("request_id", c.GetString("request_id")),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				}, GetStockScope(c.Request.Context()).Fields()...)
				logger.Error("Panic recovered", append(fields,
					zap.Any("error", err),
					zap.Stack("stacktrace"),
				)...)
				c.AbortWithStatusJSON(500, gin.H{
					"success": false,
					"error":   gin.H{"code": "INTERNAL_ERROR", "message": "Internal server error"},
				})
			}
		}()
		c.Next()
	}
}

// GetGinLogger retrieves the request logger. A stock pair a handler added to
// the request context after binding its body is attached too.
func GetGinLogger(c *gin.Context) *zap.Logger {
	value, exists := c.Get("logger")
	if !exists {
		return zap.NewNop()
	}
	l, ok := value.(*zap.Logger)
	if !ok {
		return zap.NewNop()
	}
	if c.Request == nil {
		return l
	}
	if route := routeScope(c); route.IsZero() {
		return l.With(GetStockScope(c.Request.Context()).Fields()...)
	}
	return l
}
