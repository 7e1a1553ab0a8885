package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ethan-huo/automation-chatbot/internal/auth"
	"github.com/ethan-huo/automation-chatbot/internal/middleware"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	jwtSecret string
}

func NewAuthHandler(jwtSecret string) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret}
}

// Verify handles GET /auth/verify, called by the gateway before forwarding.
// It answers 200 with X-User-* headers or 401.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	tokenString, ok := middleware.BearerToken(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := auth.ValidateToken(tokenString, h.jwtSecret)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set(middleware.HeaderUserID, claims.UserID)
	c.Set(middleware.HeaderUserEmail, claims.Email)
	return c.SendStatus(fiber.StatusOK)
}
