package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lineup-tv/lineup-api/internal/service"
)

// Metrics records method, route, status, and latency for every request. The
// templated route (FullPath) keeps the label cardinality bounded; unmatched
// requests fall back to the raw path.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
