// README: Request logging middleware.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lastmile/internal/infra/logger"
)

const RequestIDHeader = "X-Request-ID"

// Logging tags each request with an id (kept from the caller when present)
// and logs method, path, status and latency once the handler returns.
func Logging(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		c.Next()

		fields := map[string]any{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			log.Errorf("%s %s: %s", c.Request.Method, c.Request.URL.Path, c.Errors.String())
		}
		log.Debugw("http request", fields)
	}
}
