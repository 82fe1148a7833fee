package telemetry

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPServerLogger logs one line per request once it has been served.
func HTTPServerLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		lvl := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			lvl = slog.LevelError
		}

		slog.Log(c.Request.Context(), lvl, "http: finished call",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
