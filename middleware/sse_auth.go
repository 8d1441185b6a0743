// middleware/sse_auth.go
package middleware

import (
	"context"
	"strings"
	"time"

	"step-challenge-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator is satisfied by services.AuthServiceClient.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// SSEAuthMiddleware validates `token` and `device_id` from query params,
// since EventSource clients cannot set headers.
//
// Usage:
//
//	app.Get("/s/challenges/stream", middleware.SSEAuthMiddleware(authClient, logger), challengeService.StreamCompletionsSSE)
func SSEAuthMiddleware(validator TokenValidator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))

		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Missing token or device_id in query",
			})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
		defer cancel()

		resp, err := validator.ValidateToken(ctx, accessToken, deviceID)
		if err != nil {
			logger.Warn("sse_auth_failed", zap.String("device_id", deviceID), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized",
			})
		}

		c.Locals(localUserID, resp.UserID)
		c.Locals(localUserRoles, resp.Roles)
		return c.Next()
	}
}
