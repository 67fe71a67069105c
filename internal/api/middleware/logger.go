package middleware

import (
	"time"

	"course-checkout/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const logFieldsKey = "log_fields"

// healthRoutes log at debug.
var healthRoutes = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/live":    true,
	"/metrics": true,
}

// AddLogFields attaches fields to the line Logger writes when the request
// completes. Handlers use it for registration, session and error details.
func AddLogFields(c *gin.Context, fields logrus.Fields) {
	if existing, ok := c.Get(logFieldsKey); ok {
		if merged, ok := existing.(logrus.Fields); ok {
			for k, v := range fields {
				merged[k] = v
			}
			return
		}
	}

	copied := make(logrus.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	c.Set(logFieldsKey, copied)
}

// Logger writes one line per request keyed by route template, carrying the
// request id and whatever the handler attached with AddLogFields.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		status := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"request_id":  GetRequestID(c),
			"method":      c.Request.Method,
			"route":       route,
			"path":        c.Request.URL.Path,
			"status_code": status,
			"latency_ms":  time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})
		if route == "" {
			entry = entry.WithField("route", "unmatched")
		}
		if fields, ok := c.Get(logFieldsKey); ok {
			if extra, ok := fields.(logrus.Fields); ok {
				entry = entry.WithFields(extra)
			}
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("error", c.Errors.String())
		}

		switch {
		case healthRoutes[route] && status < 500:
			entry.Debug("Health check served")
		case len(c.Errors) > 0 || status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}
