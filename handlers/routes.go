// handlers/routes.go
package handlers

import (
	"step-challenge-system/middleware"
	"step-challenge-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Services struct {
	Accounts    *services.AccountService
	Plans       *services.PlanService
	Challenges  *services.ChallengeService
	Withdrawals *services.WithdrawalService
	Reports     *services.ReportService
	Auth        middleware.TokenValidator
}

// SetupRoutes mounts every /s route. The gateway forwards paths like
// /api/v1/steps/s/plans -> /s/plans.
func SetupRoutes(app *fiber.App, svc Services, logger *zap.Logger) {
	// EventSource can't send gateway user headers, so the stream authenticates
	// by query token and must be registered ahead of the /s group.
	if svc.Auth != nil {
		app.Get("/s/challenges/stream",
			middleware.SSEAuthMiddleware(svc.Auth, logger),
			svc.Challenges.StreamCompletionsSSE,
		)
	}

	secured := app.Group("/s",
		middleware.UserContextMiddleware(logger),
		middleware.EnsureAccount(svc.Accounts, logger),
	)
	admin := secured.Group("/admin", middleware.RequireRole("admin"))

	SetupStepRoutes(secured, svc.Challenges, svc.Reports, logger)
	SetupPlanRoutes(secured, admin, svc.Plans, svc.Challenges, logger)
	SetupChallengeRoutes(secured, svc.Accounts, svc.Challenges, logger)
	SetupWithdrawalRoutes(secured, admin, svc.Withdrawals, logger)
}
