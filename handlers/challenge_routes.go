// handlers/challenge_routes.go
package handlers

import (
	"step-challenge-system/middleware"
	"step-challenge-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupChallengeRoutes(secured fiber.Router, accounts *services.AccountService, challenges *services.ChallengeService, logger *zap.Logger) {
	secured.Get("/users/profile", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		acct, err := accounts.Get(ctx, middleware.UserID(c))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(acct)
	})

	// expiresAt on the current challenge may be stale until the next read or submission
	secured.Get("/users/dashboard", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		dash, err := challenges.Dashboard(ctx, middleware.UserID(c))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(dash)
	})

	secured.Get("/challenges/status", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		status, err := challenges.Status(ctx, middleware.UserID(c))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(status)
	})

	secured.Delete("/challenges/current", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		if err := challenges.Clear(ctx, middleware.UserID(c)); err != nil {
			return respondError(c, logger, err)
		}
		return message(c, fiber.StatusOK, "Challenge cleared")
	})

	secured.Get("/challenges/history", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		history, err := challenges.History(ctx, middleware.UserID(c))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(history)
	})
}
