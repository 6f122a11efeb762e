package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/healthgraph-etl/internal/http/response"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

const requestIDHeader = "X-Request-ID"

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Set(response.RequestIDKey, reqID)
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []any{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", reqID,
		}

		switch {
		case status >= 500:
			log.Error("ops request", fields...)
		case status >= 400:
			log.Warn("ops request", fields...)
		case path == "/healthz" || path == "/readyz" || path == "/metrics":
			log.Debug("ops request", fields...)
		default:
			log.Info("ops request", fields...)
		}
	}
}
