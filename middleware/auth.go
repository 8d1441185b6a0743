// middleware/auth.go
package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"
)

// UserContextMiddleware extracts user identity and roles set by the gateway.
func UserContextMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			logger.Warn("user_context_missing", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRoles, parseRoles(c.Get("X-User-Roles")))
		return c.Next()
	}
}

func parseRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, strings.ToLower(r))
		}
	}
	return roles
}

func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func Roles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(localUserRoles).([]string)
	return roles
}

func HasRole(c *fiber.Ctx, role string) bool {
	for _, r := range Roles(c) {
		if r == role {
			return true
		}
	}
	return false
}

// PrimaryRole is "admin" when present, else the first role, else "user".
func PrimaryRole(c *fiber.Ctx) string {
	roles := Roles(c)
	if HasRole(c, "admin") {
		return "admin"
	}
	if len(roles) > 0 {
		return roles[0]
	}
	return "user"
}

// RequireRole rejects callers without role. Must run after UserContextMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !HasRole(c, role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Forbidden",
			})
		}
		return c.Next()
	}
}

// AccountEnsurer is satisfied by services.AccountService.
type AccountEnsurer interface {
	Ensure(ctx context.Context, userID, role string) error
}

// EnsureAccount makes sure the caller has an account row before handlers run.
func EnsureAccount(accounts AccountEnsurer, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		if err := accounts.Ensure(ctx, UserID(c), PrimaryRole(c)); err != nil {
			logger.Error("ensure_account_failed", zap.String("user_id", UserID(c)), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "Internal Server Error",
			})
		}
		return c.Next()
	}
}
