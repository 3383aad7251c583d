package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/arcline-io/arcline-accounts/internal/app"
	"github.com/arcline-io/arcline-accounts/internal/observability"
	"github.com/arcline-io/arcline-accounts/internal/platform/cache"
	"github.com/arcline-io/arcline-accounts/internal/platform/db"
	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/users"
	"github.com/arcline-io/arcline-accounts/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	rolesRepo := roles.NewRepository(pool)
	usersRepo := users.NewRepository(pool)
	resolver := roles.NewResolver(rolesRepo)

	// The worker always runs cascades inline; enqueuing from here would loop.
	rolesService := roles.NewService(rolesRepo, usersRepo, resolver, logger, metrics, nil, roles.ServiceConfig{})

	cascadeJob := jobs.NewCascadeJob(rolesService, logger)
	integrityJob := jobs.NewIntegrityScanJob(rolesService, logger)

	integrityTask, err := jobs.NewIntegrityScanTask()
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeRoleCascade, Handler: cascadeJob.Handle},
			{Type: jobs.TaskTypeIntegrityScan, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
