package middleware

import (
	"strconv"
	"time"

	"step-challenge-system/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestLogger records prometheus metrics and one http_request log line per request.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			// let fiber's error handler set the status before we read it
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		duration := time.Since(start).Seconds()
		path := c.Route().Path
		method := c.Method()

		utils.ReqCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		utils.ReqDuration.WithLabelValues(method, path).Observe(duration)

		logger.Info("http_request",
			zap.String("method", method),
			zap.String("path", c.Path()),
			zap.String("route", path),
			zap.Int("status", status),
			zap.Float64("duration", duration),
			zap.String("client_ip", c.IP()),
			zap.String("user_id", UserID(c)),
		)
		return nil
	}
}
