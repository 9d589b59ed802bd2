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

	"github.com/SherClockHolmes/webpush-go"

	"ipv6-provision-backend/config"
	"ipv6-provision-backend/internal/api"
	"ipv6-provision-backend/internal/db"
	"ipv6-provision-backend/internal/logger"
	"ipv6-provision-backend/internal/notification"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/provision"
	"ipv6-provision-backend/internal/reconcile"
	"ipv6-provision-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	logger.Info().Str("path", configPath).Msg("Configuration loaded")

	if cfg.Provider.BaseURL == "" {
		logger.Fatal().Msg("provider.base_url must be configured")
	}
	if cfg.Server.PublicBaseURL == "" {
		logger.Warn().Msg("server.public_base_url is empty, callback URLs will be derived from request hosts")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	// Push notifications are optional; without VAPID keys callbacks simply
	// are not forwarded to browsers.
	var webpushOptions *webpush.Options
	var notifier reconcile.Notifier
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
		notifier = pool
		logger.Info().Int("workers", cfg.WorkerPool.Size).Msg("Notification worker pool started")
	} else {
		logger.Warn().Msg("VAPID keys not configured, push notifications disabled")
	}

	client := provider.NewClient(cfg.Provider, appStore)
	svc := provision.NewService(appStore, client, cfg.Retry.Concurrency)
	rec := reconcile.New(appStore, notifier)

	router := api.NewRouter(api.NewHandler(cfg, appStore, svc, rec, webpushOptions))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Info().Msg("Shutdown signal received, stopping services")
	cancel()

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("HTTP server Shutdown")
	}

	logger.Info().Msg("Server gracefully stopped")
}
