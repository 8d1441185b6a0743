// handlers/respond.go
package handlers

import (
	"context"
	"errors"
	"time"

	"step-challenge-system/services"
	"step-challenge-system/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

type errorMapping struct {
	err    error
	status int
	kind   string
	msg    string
}

var errorTable = []errorMapping{
	{services.ErrAccountNotFound, fiber.StatusNotFound, "not_found", ""},
	{services.ErrPlanNotFound, fiber.StatusNotFound, "not_found", ""},
	{services.ErrWithdrawalNotFound, fiber.StatusNotFound, "not_found", ""},
	{services.ErrNoActiveChallenge, fiber.StatusNotFound, "not_found", ""},
	{services.ErrActiveChallenge, fiber.StatusConflict, "conflict", ""},
	{services.ErrPendingWithdrawal, fiber.StatusConflict, "conflict", ""},
	{services.ErrAlreadyProcessed, fiber.StatusConflict, "conflict", ""},
	{services.ErrSelectionLimit, fiber.StatusTooManyRequests, "selection_limit", ""},
	{services.ErrInvalidAmount, fiber.StatusBadRequest, "invalid_input", ""},
	{services.ErrInsufficientBalance, fiber.StatusBadRequest, "insufficient_balance", ""},
	{services.ErrInvalidPeriod, fiber.StatusBadRequest, "invalid_input", "Invalid period"},
}

// requestContext bounds a handler's storage work.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

func message(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"message": msg})
}

// respondError maps service errors onto HTTP. Unknown errors are logged and
// reported as a bare 500.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		utils.ErrorCount.WithLabelValues("invalid_input").Inc()
		return message(c, fiber.StatusBadRequest, verr.Error())
	}
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			utils.ErrorCount.WithLabelValues(m.kind).Inc()
			msg := m.msg
			if msg == "" {
				msg = m.err.Error()
			}
			return message(c, m.status, msg)
		}
	}

	utils.ErrorCount.WithLabelValues("internal").Inc()
	logger.Error("request_failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return message(c, fiber.StatusInternalServerError, "Internal Server Error")
}

// ErrorHandler is the app-wide fiber error handler.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			return message(c, ferr.Code, ferr.Message)
		}
		return respondError(c, logger, err)
	}
}
