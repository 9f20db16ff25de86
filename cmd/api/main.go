package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinfolio/internal/config"
	"coinfolio/internal/database"
	"coinfolio/internal/logger"
	"coinfolio/internal/middleware"
	"coinfolio/internal/pricing"
	"coinfolio/internal/server"
	"coinfolio/internal/services"
	"coinfolio/internal/updates"
	"coinfolio/internal/validator"
)

// @title           Coinfolio API
// @version         1.0
// @description     Custodial crypto wallet backend: accounts, deposits and withdrawals under admin review, holdings and market prices.

// @host      localhost:8080
// @BasePath  /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	validator.Register()

	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Profile updates go through Redis when configured so every API replica
	// can serve any user's stream.
	hub := updates.NewHub()
	var publisher updates.Publisher = hub
	if cfg.RedisURL != "" {
		broker, err := updates.NewRedisBroker(cfg.RedisURL, hub)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer broker.Close()
		go func() {
			if err := broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("update relay stopped", "error", err)
			}
		}()
		publisher = broker
		log.Info("Profile updates fan out through redis")
	}

	// Initialize services
	db := dbManager.DB()
	ids := pricing.DefaultSymbolIDs()
	userService := services.NewUserService(db, publisher)
	walletService := services.NewWalletService(db, services.FeeSchedule{
		Flat: cfg.WithdrawalFlatFee,
		Rate: cfg.WithdrawalFeeRate,
	}, publisher)
	priceService := services.NewPriceService(db,
		pricing.NewCoinGecko(&http.Client{Timeout: 15 * time.Second}, cfg.CoinGeckoURL, cfg.PriceRequestsPerSec),
		ids.AllIDs())
	profileService := services.NewProfileService(userService, priceService, ids)

	if err := priceService.Start(cfg.PriceRefreshSpec); err != nil {
		return fmt.Errorf("failed to schedule price refresh: %w", err)
	}
	defer priceService.Stop()

	if cfg.AdminEmail != "" {
		if _, err := userService.EnsureAdmin(cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("failed to seed admin account: %w", err)
		}
		log.Infow("Admin account ready", "email", cfg.AdminEmail)
	}

	router := server.NewRouter(server.Deps{
		Users:         userService,
		Wallet:        walletService,
		Prices:        priceService,
		Profiles:      profileService,
		Hub:           hub,
		Issuer:        middleware.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpirationDur),
		AuthLimiter:   middleware.NewIPRateLimiter(cfg.LoginRatePerMinute),
		MetricsAPIKey: cfg.MetricsAPIKey,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting Coinfolio API on port %s", cfg.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
