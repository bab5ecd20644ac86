package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one access log line per request, at warn level for
// client errors and error level for server errors.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			requestID := res.Header().Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = "unknown"
			}
			fields := logrus.Fields{
				"request_id":    requestID,
				"method":        req.Method,
				"path":          req.URL.Path,
				"status":        res.Status,
				"latency_ms":    time.Since(start).Milliseconds(),
				"ip":            c.RealIP(),
				"user_agent":    req.UserAgent(),
				"response_size": res.Size,
			}
			entry := log.WithFields(fields)
			if err != nil {
				entry = entry.WithError(err)
			}
			switch {
			case res.Status >= 500:
				entry.Error("Server error")
			case res.Status >= 400:
				entry.Warn("Client error")
			default:
				entry.Debug("Success")
			}
			return nil
		}
	}
}
