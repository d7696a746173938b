package middleware

import (
	"context"
	"strings"
	"time"

	"codejudge/pkg/utils/contextkey"
	"codejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
)

// TraceContextMiddleware ensures trace and request ids are in context and response headers.
// Caller-supplied ids are reused so a trace can span the reverse proxy.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrNew(c, traceIDHeader)
		requestID := headerOrNew(c, requestIDHeader)

		c.Set(contextkey.TraceID.String(), traceID)
		c.Set(contextkey.RequestID.String(), requestID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// SetUserID records the authenticated user on both the gin and request contexts.
func SetUserID(c *gin.Context, userID int64) {
	c.Set(contextkey.UserID.String(), userID)
	ctx := context.WithValue(c.Request.Context(), contextkey.UserID, userID)
	c.Request = c.Request.WithContext(ctx)
}

// UserID returns the authenticated user set by SetUserID.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(contextkey.UserID.String())
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// RequestLogger writes one access log line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func headerOrNew(c *gin.Context, name string) string {
	v := strings.TrimSpace(c.GetHeader(name))
	if v == "" {
		return uuid.NewString()
	}
	return v
}
