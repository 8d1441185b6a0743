// handlers/step_routes.go
package handlers

import (
	"step-challenge-system/middleware"
	"step-challenge-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupStepRoutes(secured fiber.Router, challenges *services.ChallengeService, reports *services.ReportService, logger *zap.Logger) {
	secured.Post("/steps", func(c *fiber.Ctx) error {
		var in services.SubmitStepsInput
		if err := c.BodyParser(&in); err != nil {
			return message(c, fiber.StatusBadRequest, "Invalid request body")
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		out, err := challenges.SubmitSteps(ctx, middleware.UserID(c), in)
		if err != nil {
			return respondError(c, logger, err)
		}

		switch out.Kind {
		case services.OutcomeCompleted:
			return c.JSON(fiber.Map{
				"message":     "Challenge completed!",
				"rewardCoins": out.RewardCoins,
				"coinBalance": out.CoinBalance,
			})
		case services.OutcomeExpired:
			return message(c, fiber.StatusConflict, "Challenge expired")
		default:
			return c.JSON(fiber.Map{"stepRecord": out.Record})
		}
	})

	secured.Get("/steps/summary", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		summary, err := reports.Summary(ctx, middleware.UserID(c))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(summary)
	})

	secured.Get("/steps/history", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		history, err := reports.History(ctx, middleware.UserID(c))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(history)
	})

	secured.Get("/steps/weekly-summary", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		weekly, err := reports.WeeklySummary(ctx, middleware.UserID(c))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(weekly)
	})

	secured.Get("/steps/top", func(c *fiber.Ctx) error {
		period := c.Query("period", services.DefaultPeriod)
		// non-numeric limits fall back to the default
		limit := c.QueryInt("limit", 0)

		ctx, cancel := requestContext(c)
		defer cancel()

		top, err := reports.TopSteppers(ctx, period, limit)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(top)
	})
}
