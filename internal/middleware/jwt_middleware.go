// Package middleware holds fiber middleware shared by the API routes.
package middleware

import (
	"strings"

	"tokoorder/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	// LocalUserID is the fiber.Ctx local holding the authenticated user id.
	LocalUserID = "user_id"
	// LocalUsername is the fiber.Ctx local holding the authenticated username.
	LocalUsername = "username"
)

// TokenValidator checks a bearer token.
type TokenValidator interface {
	ValidateToken(token string) (services.Principal, error)
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(validator TokenValidator, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && strings.EqualFold(parts[0], "Bearer")) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		principal, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			logger.Debug("jwt validation failed", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
			})
		}

		// Store the principal in Fiber context for subsequent handlers
		c.Locals(LocalUserID, principal.UserID)
		c.Locals(LocalUsername, principal.Username)
		// Continue to the next handler
		return c.Next()
	}
}
