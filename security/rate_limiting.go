package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cinema-booking/internal/session"
	"cinema-booking/internal/status"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// RateLimiter keeps fixed-window counters in redis so limits hold across
// gateway instances.
type RateLimiter struct {
	redis        redis.Cmdable
	holdsPerMin  int64
	requestsPerM int64
}

func NewRateLimiter(redisClient redis.Cmdable, holdsPerMinute, requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		redis:        redisClient,
		holdsPerMin:  int64(holdsPerMinute),
		requestsPerM: int64(requestsPerMinute),
	}
}

// hit counts one event under key and reports whether it is within limit.
// Redis failures let the request through.
func (r *RateLimiter) hit(ctx context.Context, key string, limit int64) (bool, error) {
	if r.redis == nil || limit <= 0 {
		return true, nil
	}

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, time.Minute).Err(); err != nil {
			slog.Warn("rate limit expiry not set", "key", key, "error", err)
		}
	}
	return count <= limit, nil
}

// AllowHold limits how many holds one user may create per minute; each
// hold ties up a seat for the full hold window.
func (r *RateLimiter) AllowHold(ctx context.Context, userID string) error {
	ok, err := r.hit(ctx, "ratelimit:hold:"+userID, r.holdsPerMin)
	if err != nil {
		slog.Warn("hold rate limit unavailable", "error", err)
	}
	if !ok {
		return fmt.Errorf("holds for user %s: %w", userID, status.ErrRateLimited)
	}
	return nil
}

// APIRateLimit limits requests per user, or per IP for anonymous callers.
func (r *RateLimiter) APIRateLimit() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: &redisStore{limiter: r},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if s, ok := session.FromContext(c.Request().Context()); ok {
				return "user:" + s.UserID, nil
			}
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error":   "rate_limited",
				"message": "Rate limit exceeded. Please try again later.",
			})
		},
	})
}

// redisStore adapts the limiter to echo's RateLimiterStore.
type redisStore struct {
	limiter *RateLimiter
}

func (s *redisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ok, err := s.limiter.hit(ctx, "ratelimit:api:"+identifier, s.limiter.requestsPerM)
	if err != nil {
		slog.Warn("api rate limit unavailable", "error", err)
		return true, nil
	}
	return ok, nil
}

// AntiBotMiddleware rejects obvious crawlers.
func (r *RateLimiter) AntiBotMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isSuspiciousUserAgent(c.Request().Header.Get("User-Agent")) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":   "forbidden",
					"message": "Access denied",
				})
			}
			return next(c)
		}
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
