package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ethan-huo/automation-chatbot/pkg/response"
)

// Identity headers set by the gateway's forward-auth hop.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
)

// GatewayAuthMiddleware trusts identity headers injected by a gateway that
// already verified the caller.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(HeaderUserID)
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals("userId", userID)
		c.Locals("email", c.Get(HeaderUserEmail))
		return c.Next()
	}
}
