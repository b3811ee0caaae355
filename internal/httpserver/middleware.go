package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pondflow/internal/auth"
	"pondflow/internal/handler"
	"pondflow/internal/workflow"
	"pondflow/pkg/logger"
	"pondflow/pkg/metrics"
	"pondflow/pkg/rbac"
	"pondflow/pkg/trace"
)

// TraceMiddleware attaches the inbound or a fresh trace id to the request
// context and echoes it back.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeader(c.GetHeader(trace.HeaderName()))
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// RequestLogger logs every request and records its latency.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(status), latency)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		if caller, ok := handler.CallerFrom(c); ok {
			fields = append(fields, zap.Int64("user_id", caller.UserID))
		}
		l := logger.WithTrace(c.Request.Context(), log)
		if status >= http.StatusInternalServerError {
			l.Error("HTTP request", fields...)
			return
		}
		l.Info("HTTP request", fields...)
	}
}

// Resolver is the role oracle: token in, caller out.
type Resolver interface {
	Resolve(token string) (workflow.Caller, error)
}

func AuthMiddleware(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHENTICATED", "reason": "missing token"})
			return
		}

		caller, err := resolver.Resolve(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHENTICATED", "reason": "invalid token"})
			return
		}

		handler.SetCaller(c, caller)
		c.Next()
	}
}

// RequirePermission rejects callers whose role lacks permission before the
// workflow is reached. Ownership is still checked by the workflow.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := handler.CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHENTICATED", "reason": "user not authenticated"})
			return
		}

		if err := rbac.CheckPermission(caller.UserID, caller.Role, permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": string(workflow.KindUnauthorized), "reason": err.Error()})
			return
		}

		c.Next()
	}
}
