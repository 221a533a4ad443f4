package middleware

import (
	"time"

	"peercall/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLoggingMiddleware logs each HTTP request with its status and timing.
func RequestLoggingMiddleware(zapLogger *zap.Logger) gin.HandlerFunc {
	cl := logger.NewContextLogger(zapLogger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cl.LogRequest(
			c.Request.Context(),
			c.Request.Method,
			c.FullPath(),
			c.Writer.Status(),
			time.Since(start).Milliseconds(),
		)
	}
}
