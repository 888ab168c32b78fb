package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bazaar/internal/monitor"
	"bazaar/pkg/log"
)

// Logger request logging middleware. When metrics is non-nil, every
// request is also counted and timed.
func Logger(metrics *monitor.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		method := c.Request.Method

		if metrics != nil {
			metrics.RecordHTTPRequest(method, path, strconv.Itoa(statusCode))
			metrics.RecordHTTPDuration(method, path, latency)
		}

		if raw != "" {
			path = path + "?" + raw
		}

		fields := map[string]interface{}{
			"status":  statusCode,
			"method":  method,
			"path":    path,
			"ip":      c.ClientIP(),
			"latency": latency,
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if statusCode >= 500 {
			log.WithFields(fields).Error("Server error")
		} else if statusCode >= 400 {
			log.WithFields(fields).Warn("Client error")
		} else {
			log.WithFields(fields).Info("Request completed")
		}
	}
}
