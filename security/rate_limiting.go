package security

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const rateLimitWindow = time.Minute

type RateLimiter struct {
	redis     *redis.Client
	perMinute int64
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{redis: redisClient, perMinute: int64(perMinute)}
}

func rateLimitKey(ip string) string {
	return fmt.Sprintf("ratelimit:rooms:%s", ip)
}

// RoomRateLimit counts requests per client IP in a fixed one minute window.
// Redis failures let the request through.
func (r *RateLimiter) RoomRateLimit(e *core.RequestEvent) error {
	if r.isSuspiciousUserAgent(e.Request.UserAgent()) {
		return e.JSON(http.StatusForbidden, map[string]string{
			"error": "Access denied",
		})
	}

	ctx := e.Request.Context()
	ip := e.RemoteIP()
	key := rateLimitKey(ip)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("rate limit counter unavailable", "ip", ip, "error", err)
		return e.Next()
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
			slog.Warn("failed to set rate limit window", "ip", ip, "error", err)
		}
	}
	if count > r.perMinute {
		slog.Info("rate limit exceeded", "ip", ip, "count", count)
		return e.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Rate limit exceeded. Please try again later.",
		})
	}

	return e.Next()
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
