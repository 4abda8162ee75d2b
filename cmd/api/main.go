package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/app"
	"github.com/bankii-labs/bankiiswap/internal/config"
	"github.com/bankii-labs/bankiiswap/internal/metrics"
	"github.com/bankii-labs/bankiiswap/internal/server"
)

// main is the entry point for the API server
// It initializes all dependencies and starts the HTTP server with graceful shutdown
func main() {
	// Bootstrap logger until LOG_LEVEL is known
	logger := app.NewLogger("info")

	// load .env BEFORE anything reads os.Getenv
	app.LoadEnv(logger)

	// Load and validate configuration from environment variables
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger = app.NewLogger(cfg.LogLevel)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown (Ctrl+C, SIGTERM)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Connect Redis, optional Postgres, ClickHouse and NATS, and build the services
	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.New(startCtx, cfg, logger, metrics.New(prometheus.DefaultRegisterer))
	startCancel()
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize services")
	}
	defer a.Close()

	// Create handlers with all dependencies injected
	h := &server.Handlers{
		Resolver:  a.Resolver,
		Quotes:    a.Quotes,
		Catalog:   a.Jupiter,
		Tokens:    a.Tokens,
		SwapLogs:  a.Recorder,
		Store:     a.Store,
		History:   a.History,
		Favorites: a.Favorites,
		Portfolio: a.Portfolio,
		Live:      a.Live,
		Metrics:   a.Metrics,
		Logger:    logger,
	}

	// Create HTTP server with configuration and handlers
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr, // Server bind address (e.g., ":8090")
			DevMode: cfg.DevMode, // Development mode flag
			APIKey:  cfg.APIKey,  // Optional API key for authentication

			ShutdownTimeout: cfg.ShutdownTimeout,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	// Setup graceful shutdown in a separate goroutine
	go func() {
		<-sigCh // Wait for shutdown signal
		logger.Info("shutting down")
		cancel()                               // Cancel context to stop ongoing operations
		_ = srv.Shutdown(context.Background()) // Gracefully shutdown HTTP server
	}()

	// Start the HTTP server
	logger.WithFields(logrus.Fields{
		"postgres":    a.Store != nil,
		"clickhouse":  cfg.ClickHouseAddr != "",
		"nats":        cfg.NATSURL != "",
		"jupiter":     cfg.JupiterBaseURL,
		"log_level":   cfg.LogLevel,
		"fee_mints":   len(cfg.FeeAccounts),
	}).Info("api server starting")
	if err := srv.Start(); err != nil {
		// http.ErrServerClosed is expected during graceful shutdown
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("api server failed")
		}
	}

	// Wait for server to be fully shut down
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer waitCancel()
	if err := srv.WaitClosed(waitCtx); err != nil {
		logger.WithError(err).Warn("server did not close cleanly")
	}
}
