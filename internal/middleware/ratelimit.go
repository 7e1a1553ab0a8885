package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/pkg/response"
)

// RateLimiter counts requests per user in fixed Redis windows.
type RateLimiter struct {
	redis *redis.Client
	log   *logger.Logger
}

// NewRateLimiter returns a limiter. A nil client disables limiting.
func NewRateLimiter(redisClient *redis.Client, log *logger.Logger) *RateLimiter {
	return &RateLimiter{redis: redisClient, log: log.With("middleware", "ratelimit")}
}

func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.redis == nil || maxRequests <= 0 {
			return c.Next()
		}
		userID := GetUserID(c)
		if userID == "" {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, userID)
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// fail open
			rl.log.Warn("rate limit counter unavailable", "key", key, "error", err)
			return c.Next()
		}
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))
		return c.Next()
	}
}

// GenerateLimit guards the audio and image creation endpoints.
func (rl *RateLimiter) GenerateLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("generate", maxPerHour, time.Hour)
}

// AnimationLimit guards whiteboard animation creation.
func (rl *RateLimiter) AnimationLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("animation", maxPerHour, time.Hour)
}
