package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wecinema/wecinema-backend/api/routes"
	"github.com/wecinema/wecinema-backend/internal/access"
	"github.com/wecinema/wecinema-backend/internal/deposits"
	"github.com/wecinema/wecinema-backend/internal/movies"
	"github.com/wecinema/wecinema-backend/internal/payments"
	"github.com/wecinema/wecinema-backend/internal/registry"
	"github.com/wecinema/wecinema-backend/internal/sessions"
	"github.com/wecinema/wecinema-backend/internal/subscriptions"
	squarewebhook "github.com/wecinema/wecinema-backend/internal/webhooks/square"
	"github.com/wecinema/wecinema-backend/pkg/config"
	"github.com/wecinema/wecinema-backend/pkg/db"
	"github.com/wecinema/wecinema-backend/pkg/logger"
	"github.com/wecinema/wecinema-backend/pkg/migrate"
	"github.com/wecinema/wecinema-backend/pkg/outbox"
	"github.com/wecinema/wecinema-backend/pkg/redis"
	"github.com/wecinema/wecinema-backend/pkg/square"
)

const webhookDedupeTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square client", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	moviesRepo := movies.NewRepository(gdb)
	sessionsRepo := sessions.NewRepository(gdb)
	registryRepo := registry.NewRepository(gdb)
	subscriptionsRepo := subscriptions.NewRepository(gdb)
	paymentsRepo := payments.NewRepository(gdb)
	depositsRepo := deposits.NewRepository(gdb)

	registrySvc, err := registry.NewService(registryRepo, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create registry service", err)
		os.Exit(1)
	}

	sessionsSvc, err := sessions.NewService(sessionsRepo, registryRepo, moviesRepo, dbClient, outboxSvc, cfg.Rental)
	if err != nil {
		logg.Error(context.Background(), "failed to create sessions service", err)
		os.Exit(1)
	}

	depositsSvc, err := deposits.NewService(depositsRepo, registrySvc, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create deposits service", err)
		os.Exit(1)
	}

	squareSource := subscriptions.NewSquareSource(squareClient)
	subscriptionsSvc, err := subscriptions.NewService(subscriptionsRepo, dbClient, squareSource)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(paymentsRepo, payments.NewSquareFetcher(squareClient), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	accessSvc, err := access.NewService(access.ServiceParams{
		TransactionRunner: dbClient,
		Movies:            moviesRepo,
		SessionRepo:       sessionsRepo,
		SessionService:    sessionsSvc,
		RegistryRepo:      registryRepo,
		SubscriptionRepo:  subscriptionsRepo,
		PaymentRepo:       paymentsRepo,
		Outbox:            outboxSvc,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create access service", err)
		os.Exit(1)
	}

	webhookSvc, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Payments:      paymentsSvc,
		Subscriptions: subscriptionsSvc,
		Source:        squareSource,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := squarewebhook.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "square-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:             cfg,
			Logger:             logg,
			DB:                 dbClient,
			Redis:              redisClient,
			AccessService:      accessSvc,
			SessionsService:    sessionsSvc,
			DepositsService:    depositsSvc,
			SubscriptionsSvc:   subscriptionsSvc,
			RegistryService:    registrySvc,
			PaymentsService:    paymentsSvc,
			MoviesRepo:         moviesRepo,
			SquareClient:       squareClient,
			SquareWebhookSvc:   webhookSvc,
			SquareWebhookGuard: webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
