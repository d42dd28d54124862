package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"geoindex/internal/logging"
)

// RequestLogger logs one line per request through slog, in place of gin's
// default text logger.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logging.OrDiscard(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("client", c.ClientIP()),
		)
	}
}
