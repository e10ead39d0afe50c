package middleware

import (
	"time"

	"github.com/Dhoini/checkout-service/internal/metrics"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger - Gin middleware для логирования запросов и HTTP-метрик. m может быть nil.
func RequestLogger(log *logger.Logger, m metrics.CheckoutMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		path := c.Request.URL.Path
		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			path = path + "?" + rawQuery
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		// Шаблон маршрута, чтобы не плодить label'ы на каждый id
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if m != nil {
			m.ObserveHTTPRequest(c.Request.Method, route, statusCode, latency)
		}

		fields := []interface{}{
			"status_code", statusCode,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"request_id", requestID,
		}
		if userID := UserID(c); userID != "" {
			fields = append(fields, "userID", userID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		log.Infow("Request handled", fields...)
	}
}
