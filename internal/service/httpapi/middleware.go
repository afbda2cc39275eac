package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
)

// instrument считает запросы по шаблону маршрута, а не по фактическому пути.
func instrument(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "not_found"
		}

		m.Begin()
		c.Next()
		m.Observe(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request failed")
			return
		}
		if c.Writer.Status() >= 500 {
			entry.Warn("request completed with server error")
			return
		}
		entry.Debug("request completed")
	}
}
