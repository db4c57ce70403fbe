package middleware

import (
	"net/http"
	"time"

	"post-planner/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextRequestID is the gin context key holding the request id.
	ContextRequestID = "request_id"
	requestIDHeader  = "X-Request-ID"
)

// RequestLogger tags every request with an id and logs its outcome.
func RequestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		requestID := ctx.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		ctx.Set(ContextRequestID, requestID)
		ctx.Header(requestIDHeader, requestID)

		lg := logger.GetLogger().WithFields(map[string]interface{}{
			"request_id":  requestID,
			"method":      ctx.Request.Method,
			"path":        ctx.FullPath(),
			"remote_addr": ctx.ClientIP(),
		})
		defer func() {
			if rec := recover(); rec != nil {
				lg.WithField("panic", rec).Error("panic recovered")
				ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
			}
			entry := lg.WithFields(map[string]interface{}{
				"status":   ctx.Writer.Status(),
				"duration": time.Since(start).String(),
			})
			if ctx.Writer.Status() >= http.StatusInternalServerError {
				entry.Warn("request completed")
				return
			}
			entry.Info("request completed")
		}()

		ctx.Next()
	}
}
