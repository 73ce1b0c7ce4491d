package middleware

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

// RateLimit returns middleware that limits each client IP to maxRequests per
// fixed window. Counters live in Redis so every replica shares them. A nil
// client or a non-positive limit disables limiting. Redis errors fail open.
func RateLimit(rdb *redis.Client, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if rdb == nil || maxRequests <= 0 || window <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			now := time.Now()
			slot := now.UnixMilli() / window.Milliseconds()
			key := fmt.Sprintf("ratelimit:%s:%d", c.RealIP(), slot)

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				slog.Warn("rate limit check failed", slog.Any("error", err))
				return next(c)
			}
			if count == 1 {
				// First hit in this window owns the expiry.
				if err := rdb.PExpire(ctx, key, window).Err(); err != nil {
					slog.Warn("rate limit expiry failed", slog.Any("error", err))
				}
			}

			remaining := int64(maxRequests) - count
			if remaining < 0 {
				remaining = 0
			}
			resetAt := time.UnixMilli((slot + 1) * window.Milliseconds())
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(maxRequests) {
				h.Set("Retry-After", strconv.Itoa(int(resetAt.Sub(now).Seconds())+1))
				return apperror.NewTooManyRequests("Rate limit exceeded. Please try again later.")
			}
			return next(c)
		}
	}
}
