package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paylink-gateway/config"
	httpHandler "paylink-gateway/internal/adapter/http/handler"
	pgStorage "paylink-gateway/internal/adapter/storage/postgres"
	redisStorage "paylink-gateway/internal/adapter/storage/redis"
	"paylink-gateway/internal/core/ports"
	"paylink-gateway/internal/service"
	"paylink-gateway/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting PayLink Gateway")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	linkRepo := pgStorage.NewLinkRepo(pool)
	outboxRepo := pgStorage.NewOutboxRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize core services
	cipher, err := service.NewAESSecretCipher(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize secret cipher")
	}
	sigSvc := service.NewHMACSignatureService()

	// Initialize business services
	merchantSvc := service.NewMerchantService(merchantRepo, cipher, log)
	linkSvc := service.NewLinkService(
		linkRepo,
		outboxRepo,
		transactor,
		cfg.Links.BaseURL,
		cfg.Links.DefaultExpiry,
		log,
	)

	// Webhook dispatcher drains the outbox in the background.
	dispatcher := service.NewWebhookDispatcher(
		outboxRepo,
		merchantRepo,
		cipher,
		sigSvc,
		&http.Client{Timeout: cfg.Webhook.Timeout},
		cfg.Webhook.PollInterval,
		cfg.Webhook.BatchSize,
		log,
	)
	dispatcherCtx, stopDispatcher := context.WithCancel(ctx)
	defer stopDispatcher()
	go dispatcher.Run(dispatcherCtx)
	log.Info().
		Dur("poll_interval", cfg.Webhook.PollInterval).
		Int("batch_size", cfg.Webhook.BatchSize).
		Msg("Webhook dispatcher started")

	// Initialize rate limit store
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		MerchantSvc:    merchantSvc,
		LinkSvc:        linkSvc,
		OutboxRepo:     outboxRepo,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stopDispatcher()

	log.Info().Msg("Server exited")
}
