package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/arcline-io/arcline-accounts/internal/app"
	"github.com/arcline-io/arcline-accounts/internal/auth"
	"github.com/arcline-io/arcline-accounts/internal/authz"
	"github.com/arcline-io/arcline-accounts/internal/enterprises"
	"github.com/arcline-io/arcline-accounts/internal/observability"
	"github.com/arcline-io/arcline-accounts/internal/platform/cache"
	"github.com/arcline-io/arcline-accounts/internal/platform/db"
	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/shared"
	"github.com/arcline-io/arcline-accounts/internal/users"
	"github.com/arcline-io/arcline-accounts/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Sessions live in Redis, so a dead Redis is fatal here.
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

	sessionManager := shared.NewSessionManager(redisClient, "arcline_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()

	rolesRepo := roles.NewRepository(dbpool)
	usersRepo := users.NewRepository(dbpool)
	enterprisesRepo := enterprises.NewRepository(dbpool)

	var enqueuer roles.CascadeEnqueuer
	if cfg.CascadeAsync {
		client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		enqueuer = client
	}

	resolver := roles.NewResolver(rolesRepo)
	rolesService := roles.NewService(rolesRepo, usersRepo, resolver, logger, metrics, enqueuer, roles.ServiceConfig{
		AsyncCascade: cfg.CascadeAsync,
	})
	usersService := users.NewService(usersRepo, rolesService)
	enterprisesService := enterprises.NewService(enterprisesRepo)

	authService := auth.NewService(usersRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	gate := authz.NewGate(metrics)
	authzMiddleware := authz.Middleware{Gate: gate, Logger: logger}

	rolesHandler := roles.NewHandler(logger, rolesService, authzMiddleware)
	usersHandler := users.NewHandler(logger, usersService, authzMiddleware)
	enterprisesHandler := enterprises.NewHandler(logger, enterprisesService, authzMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		EnterprisesHandler: enterprisesHandler,
		PrincipalLoader:    auth.LoadPrincipal(authService, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
