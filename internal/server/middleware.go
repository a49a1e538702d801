package server

import (
	"strconv"
	"time"

	"gymcore/internal/metrics"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests no route matched, so scanners cannot grow the path label set.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records count and latency per route template, never per raw path.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
