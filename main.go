package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"step-challenge-system/cache"
	"step-challenge-system/config"
	"step-challenge-system/handlers"
	"step-challenge-system/middleware"
	"step-challenge-system/models"
	"step-challenge-system/services"
	"step-challenge-system/utils"
	"step-challenge-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	utils.InitMetrics()
	startedAt := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		logger.Fatal("database_connect_failed", zap.Error(err))
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Fatal("database_migrate_failed", zap.Error(err))
	}

	// Leaderboard cache is optional; without redis every read hits postgres.
	var resultCache services.ResultCache
	if cfg.RedisURL != "" {
		store, err := cache.New(ctx, cfg.RedisURL, cfg.LeaderboardCacheTTL, logger)
		if err != nil {
			logger.Fatal("redis_connect_failed", zap.Error(err))
		}
		defer store.Close()
		// entries from a previous release may have a different shape
		if err := store.DeletePattern(ctx, "leaderboard:*"); err != nil {
			logger.Warn("leaderboard_cache_flush_failed", zap.Error(err))
		}
		resultCache = store
	}

	clock := services.NewClock(cfg.Location)
	locks := services.NewUserLocks()

	accountService := services.NewAccountService(db, logger)
	planService := services.NewPlanService(db, logger)
	challengeService := services.NewChallengeService(db, locks, clock, logger)
	withdrawalService := services.NewWithdrawalService(db, locks, clock, logger)
	reportService := services.NewReportService(db, clock, resultCache, logger)

	if cfg.SeedDefaultPlans {
		n, err := planService.SeedDefaults(ctx)
		if err != nil {
			logger.Fatal("seed_plans_failed", zap.Error(err))
		}
		if n > 0 {
			logger.Info("seeded_default_plans", zap.Int("count", n))
		}
	}

	var archiveService *services.ArchiveService
	if cfg.ArchiveEnabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket)
		if err != nil {
			logger.Fatal("r2_init_failed", zap.Error(err))
		}
		archiveService = services.NewArchiveService(db, r2, clock, logger)
	}

	var authClient middleware.TokenValidator
	if cfg.AuthServiceURL != "" {
		authClient = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.AuthServiceToken)
	} else {
		logger.Warn("auth_service_unset", zap.String("disabled", "/s/challenges/stream"))
	}

	app := fiber.New(fiber.Config{
		AppName:      "step-challenge-system",
		ErrorHandler: handlers.ErrorHandler(logger),
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	go limiter.Cleanup(ctx)

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(limiter.Handler())

	// Health and metrics sit in front of the gateway check for load balancers and scrapers.
	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"uptime": time.Since(startedAt).Seconds(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// 🔐 GLOBAL: Only Gateway requests allowed past this point
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, logger))

	handlers.SetupRoutes(app, handlers.Services{
		Accounts:    accountService,
		Plans:       planService,
		Challenges:  challengeService,
		Withdrawals: withdrawalService,
		Reports:     reportService,
		Auth:        authClient,
	}, logger)

	sched, err := services.Jobs{
		Reports:       reportService,
		Archive:       archiveService,
		Challenges:    challengeService,
		SweepInterval: cfg.ExpirySweepInterval,
		Location:      cfg.Location,
		Logger:        logger,
	}.Start(ctx)
	if err != nil {
		logger.Fatal("scheduler_start_failed", zap.Error(err))
	}

	if cfg.ProfileSyncURL != "" {
		workers.NewProfileSyncWorker(db, logger, cfg.ProfileSyncURL, "/api/v1/public/profiles", cfg.ProfileSyncToken).Start(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server_starting", zap.String("port", cfg.Port))
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server_failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler_shutdown_failed", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("server_stopped")
}
