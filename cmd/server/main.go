// Package main is the entry point for the MeetMate availability server.
// It wires the store, the realtime hub, the sync orchestrator, and the
// HTTP API, and runs them until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/availability"
	"github.com/Maken-HQ-Team/meetmate/internal/config"
	"github.com/Maken-HQ-Team/meetmate/internal/database"
	"github.com/Maken-HQ-Team/meetmate/internal/httpapi"
	"github.com/Maken-HQ-Team/meetmate/internal/monitor"
	"github.com/Maken-HQ-Team/meetmate/internal/profilecache"
	"github.com/Maken-HQ-Team/meetmate/internal/ratelimit"
	"github.com/Maken-HQ-Team/meetmate/internal/realtime"
	"github.com/Maken-HQ-Team/meetmate/internal/retry"
	"github.com/Maken-HQ-Team/meetmate/internal/timezone"
	"github.com/Maken-HQ-Team/meetmate/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		// Sync errors on stdout/stderr are expected for non-syncable
		// file descriptors
		_ = log.Sync()
	}()

	log.Info("starting MeetMate server",
		zap.String("environment", cfg.Server.Env),
		zap.String("http_port", cfg.Server.HTTPPort),
	)

	// Initialize the per-operation rate limiter and database connection
	limiter := ratelimit.NewLimiter(logger.ForComponent(log, "ratelimit"))

	db, err := database.NewDB(&cfg.Database, limiter, logger.ForComponent(log, "database"))
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := runMigrations(db, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the monitor and the profile cache
	mon := monitor.New(logger.ForComponent(log, "monitor"))
	cache := profilecache.New(
		db.GetProfilesByIDs,
		cfg.Cache.ProfileCapacity,
		cfg.Cache.ProfileTTL,
		cfg.Cache.MaxBatchSize,
		mon,
		logger.ForComponent(log, "profilecache"),
	)

	// Initialize the retry engine and invocation guard
	engine := retry.NewEngine(logger.ForComponent(log, "retry"), mon,
		retry.WithMaxRetries(cfg.Sync.MaxRetries),
		retry.WithBusyNotify(func(_ string, retryAfter time.Duration) {
			limiter.SetBusyAll(retryAfter)
		}),
	)
	guard := retry.NewGuard(logger.ForComponent(log, "retry"))

	// Initialize the realtime hub on the notify channel
	hub := realtime.NewHub(cfg.Database.GetDSN(), &cfg.Realtime, logger.ForComponent(log, "realtime"))
	hubErrChan := make(chan error, 1)
	go func() {
		if err := hub.Run(ctx); err != nil {
			hubErrChan <- err
		}
	}()

	// Initialize the availability sync orchestrator
	svc := availability.NewService(
		db,
		cache,
		engine,
		guard,
		availability.HubNotifier{Hub: hub},
		mon,
		&cfg.Sync,
		logger.ForComponent(log, "availability"),
	)
	defer svc.Close()

	// Schedule maintenance jobs: cache sweep every minute, monitor sweep
	// hourly
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 1m", cache.Cleanup); err != nil {
		log.Fatal("failed to schedule cache cleanup", zap.Error(err))
	}
	if _, err := scheduler.AddFunc("@every 1h", mon.Cleanup); err != nil {
		log.Fatal("failed to schedule monitor cleanup", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the HTTP server
	converter := timezone.NewConverter(logger.ForComponent(log, "timezone"))
	handlers := httpapi.NewHandlers(svc, converter, mon, db, logger.ForComponent(log, "httpapi"))
	httpServer := httpapi.NewServer(handlers, cfg.Server.HTTPPort, logger.ForComponent(log, "httpapi"))

	httpErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(); err != nil {
			httpErrChan <- err
		}
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-httpErrChan:
		log.Fatal("HTTP server error", zap.Error(err))
	case err := <-hubErrChan:
		log.Fatal("realtime hub error", zap.Error(err))
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	cancel()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown realtime hub gracefully", zap.Error(err))
	}

	log.Info("server shut down successfully")
}

// runMigrations runs database migrations using the migrate library
func runMigrations(db *database.DB, log *zap.Logger) error {
	log.Info("running database migrations")

	// relative to the binary's working directory
	migrationsPath := "internal/database/migrations"

	if err := db.RunMigrations(migrationsPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully")
	return nil
}
