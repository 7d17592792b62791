package middleware

import (
	"time"

	applogger "CostPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging emits one structured log line per request after the
// handler finishes. 5xx responses log at error level so they land in
// the recent-error ring surfaced by the health endpoint.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}

			req := c.Request()
			start := time.Now()

			err := next(c)

			res := c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", req.RemoteAddr),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", time.Since(start)),
			}

			if res.Status >= 500 {
				l.Error("http request failed", fields...)
			} else {
				l.Info("http request", fields...)
			}

			return err
		}
	}
}
