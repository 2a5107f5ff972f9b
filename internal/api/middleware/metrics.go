package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// NewMetrics records every request against its route template. Unmatched
// routes are recorded as "unmatched" to bound label cardinality.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil && !c.Response().Committed {
				// let the error handler pick the status before it is recorded
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			req, res := c.Request(), c.Response()
			m.RecordHTTPRequest(req.Method, route, res.Status, time.Since(start).Seconds(), res.Size)
			return nil
		}
	}
}
