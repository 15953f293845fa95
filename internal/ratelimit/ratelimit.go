package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"momopay/internal/errors"
)

// Counter is the shared counter backend the limiter runs on. The Redis cache
// client satisfies it, so the limit holds across multiple service instances.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter is a fixed-window rate limiter on a shared counter. It fails open
// when the counter is unreachable: losing abuse protection is preferable to
// dropping gateway webhooks.
type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
}

// New creates a limiter allowing limit requests per caller per window.
func New(counter Counter, limit int, window time.Duration) *Limiter {
	return &Limiter{
		counter: counter,
		limit:   limit,
		window:  window,
	}
}

// Allow reports whether the caller identified by key may proceed.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	window := time.Now().Unix() / int64(l.window.Seconds())
	counterKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	count, err := l.counter.Incr(ctx, counterKey, l.window)
	if err != nil {
		return true
	}
	return count <= int64(l.limit)
}

// Middleware limits requests per client IP.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.Request().Context(), c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, errors.ErrorResponse{
					Error: "too many requests",
					Code:  "RATE_LIMITED",
				})
			}
			return next(c)
		}
	}
}
