package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidpay/config"
	"vidpay/internal/adapter/gateway/paystack"
	httpHandler "vidpay/internal/adapter/http/handler"
	pgStorage "vidpay/internal/adapter/storage/postgres"
	redisStorage "vidpay/internal/adapter/storage/redis"
	"vidpay/internal/core/ports"
	"vidpay/internal/service"
	"vidpay/pkg/logger"
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
		Msg("Starting VidPay")

	ctx := context.Background()

	// Run schema migrations before opening the pool
	if err := pgStorage.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationsPath, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

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
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	walletTxRepo := pgStorage.NewWalletTransactionRepo(pool)
	rentalRepo := pgStorage.NewRentalRepo(pool)
	purchaseRepo := pgStorage.NewPurchaseRepo(pool)
	webhookEventRepo := pgStorage.NewWebhookEventRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	dedupStore := redisStorage.NewDedupStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESCryptoService(cfg.Crypto.Passphrase, cfg.Crypto.Salt)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService(cfg.Gateway.SecretKey)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	gatewayClient := paystack.NewClient(cfg.Gateway, log)

	// Initialize business services
	ledger := service.NewWalletLedgerService(walletRepo, walletTxRepo, log)
	fulfillmentSvc := service.NewFulfillmentService(rentalRepo, purchaseRepo, walletRepo, ledger, log)
	paymentSvc := service.NewPaymentService(
		paymentRepo,
		walletRepo,
		rentalRepo,
		purchaseRepo,
		ledger,
		fulfillmentSvc,
		gatewayClient,
		idempotencyCache,
		encSvc,
		transactor,
		log,
	)
	webhookSvc := service.NewWebhookService(sigSvc, dedupStore, webhookEventRepo, paymentSvc, log)
	entitlementSvc := service.NewEntitlementService(rentalRepo, purchaseRepo, log)

	// Rental sweeper: flips overdue rentals to expired so the status column
	// tracks reality. Access checks filter on expires_at and never wait
	// for a sweep.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.Server.RentalSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := entitlementSvc.ExpireOverdueRentals(sweepCtx); err != nil {
					log.Error().Err(err).Msg("Rental sweep failed")
				}
			}
		}
	}()

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     paymentSvc,
		WalletSvc:      ledger,
		EntitlementSvc: entitlementSvc,
		WebhookSvc:     webhookSvc,
		TokenSvc:       tokenSvc,
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
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
