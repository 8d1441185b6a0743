// handlers/plan_routes.go
package handlers

import (
	"step-challenge-system/middleware"
	"step-challenge-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupPlanRoutes(secured, admin fiber.Router, plans *services.PlanService, challenges *services.ChallengeService, logger *zap.Logger) {
	secured.Get("/plans", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := plans.List(ctx, true)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(list)
	})

	// :id is a uuid or a slug
	secured.Get("/plans/:id", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		plan, err := plans.Get(ctx, c.Params("id"), true)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(plan)
	})

	// :id is a uuid or a slug here too
	secured.Post("/plans/:id/select", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		sel, err := challenges.SelectPlan(ctx, middleware.UserID(c), c.Params("id"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{
			"message":                   "Plan selected",
			"currentChallengeId":        sel.PlanID,
			"currentChallengeProgress":  sel.Progress,
			"currentChallengeStartedAt": sel.StartedAt,
			"currentChallengeExpiresAt": sel.ExpiresAt,
		})
	})

	// --- admin catalog management ---

	admin.Get("/plans", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := plans.List(ctx, false)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(list)
	})

	admin.Post("/plans", func(c *fiber.Ctx) error {
		var in services.PlanInput
		if err := c.BodyParser(&in); err != nil {
			return message(c, fiber.StatusBadRequest, "Invalid request body")
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		plan, err := plans.Create(ctx, in)
		if err != nil {
			return respondError(c, logger, err)
		}
		logger.Info("plan_created", zap.String("plan_id", plan.ID), zap.String("by", middleware.UserID(c)))
		return c.Status(fiber.StatusCreated).JSON(plan)
	})

	admin.Put("/plans/:id", func(c *fiber.Ctx) error {
		var in services.PlanInput
		if err := c.BodyParser(&in); err != nil {
			return message(c, fiber.StatusBadRequest, "Invalid request body")
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		plan, err := plans.Update(ctx, c.Params("id"), in)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(plan)
	})

	admin.Delete("/plans/:id", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		if err := plans.Delete(ctx, c.Params("id")); err != nil {
			return respondError(c, logger, err)
		}
		logger.Info("plan_deleted", zap.String("plan_id", c.Params("id")), zap.String("by", middleware.UserID(c)))
		return message(c, fiber.StatusOK, "Plan deleted")
	})
}
