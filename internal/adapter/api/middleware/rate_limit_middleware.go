package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"petadopt/internal/infrastructure/ratelimit"
	"petadopt/internal/metrics"
	"petadopt/pkg/errors"
	"petadopt/pkg/logger"
	"petadopt/pkg/response"
)

// RateLimit guards a route with the per-user bucket for action. It must run
// after Authenticate.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, _ := c.Get(ContextKeyUID).(string)
			if uid == "" {
				uid = c.RealIP()
			}

			allowed, wait := limiter.Allow(uid, action)
			if !allowed {
				seconds := int((wait + time.Second - 1) / time.Second)
				if seconds < 1 {
					seconds = 1
				}

				metrics.RateLimitHits.WithLabelValues(action).Inc()
				logger.Warn("RATE LIMIT: %s blocked for %s (retry in %ds)", uid, action, seconds)

				c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
				return response.Error(c, errors.TooManyRequests(
					fmt.Sprintf("Too many requests, retry in %d seconds", seconds)))
			}

			return next(c)
		}
	}
}
