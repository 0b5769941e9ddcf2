// README: Recovery middleware.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lastmile/internal/infra/logger"
)

// Recovery turns a handler panic into a 500 and logs it.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, rec)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
