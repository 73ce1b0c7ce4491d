package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/metrics"
)

// Metrics records request counts and latency per route template. The route
// template (c.Path) keeps label cardinality bounded; unmatched requests are
// grouped under "unmatched".
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}

			method := c.Request().Method
			metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// statusOf resolves the status an error will be rendered with.
func statusOf(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return apperror.SafeCode(err)
}
