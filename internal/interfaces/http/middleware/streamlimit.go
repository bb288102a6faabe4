package middleware

import (
	"net/http"
	"sync"

	"github.com/erp/inventory/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// StreamLimiter caps concurrent long-lived streams per client IP
type StreamLimiter struct {
	mu     sync.Mutex
	open   map[string]int
	perKey int
}

// NewStreamLimiter creates a limiter allowing perKey concurrent streams per client
func NewStreamLimiter(perKey int) *StreamLimiter {
	return &StreamLimiter{open: make(map[string]int), perKey: perKey}
}

// Acquire claims a stream slot for key
func (l *StreamLimiter) Acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perKey > 0 && l.open[key] >= l.perKey {
		return false
	}
	l.open[key]++
	return true
}

// Release returns a stream slot for key
func (l *StreamLimiter) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open[key] <= 1 {
		delete(l.open, key)
		return
	}
	l.open[key]--
}

// Open returns the number of streams held by key
func (l *StreamLimiter) Open(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[key]
}

// LimitStreams rejects a stream when the client already holds its quota
func LimitStreams(limiter *StreamLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !limiter.Acquire(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeTooManyStreams,
				"Too many open streams for this client",
				GetRequestID(c),
			))
			return
		}
		defer limiter.Release(key)
		c.Next()
	}
}
