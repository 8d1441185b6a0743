// handlers/withdrawal_routes.go
package handlers

import (
	"step-challenge-system/middleware"
	"step-challenge-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupWithdrawalRoutes(secured, admin fiber.Router, withdrawals *services.WithdrawalService, logger *zap.Logger) {
	secured.Post("/withdrawals", func(c *fiber.Ctx) error {
		var in services.WithdrawalInput
		if err := c.BodyParser(&in); err != nil {
			return message(c, fiber.StatusBadRequest, "Invalid request body")
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		req, err := withdrawals.Create(ctx, middleware.UserID(c), in)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	secured.Get("/withdrawals", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := withdrawals.ListForUser(ctx, middleware.UserID(c))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(list)
	})

	admin.Get("/withdrawals", func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := withdrawals.ListAll(ctx, c.Query("status"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(list)
	})

	admin.Put("/withdrawals/:id", func(c *fiber.Ctx) error {
		var in services.SettleInput
		if err := c.BodyParser(&in); err != nil {
			return message(c, fiber.StatusBadRequest, "Invalid request body")
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		req, err := withdrawals.Settle(ctx, c.Params("id"), in)
		if err != nil {
			return respondError(c, logger, err)
		}
		logger.Info("withdrawal_settled_by_admin",
			zap.String("withdrawal_id", req.ID),
			zap.String("status", string(req.Status)),
			zap.String("by", middleware.UserID(c)),
		)
		return c.JSON(req)
	})
}
