package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campreg/internal/config"
	"campreg/internal/database"
	"campreg/internal/external"
	"campreg/internal/inventory"
	"campreg/internal/jobs"
	"campreg/internal/logger"
	"campreg/internal/messaging"
	"campreg/internal/repository"
	"campreg/internal/service"
)

// The worker is a headless instance of the retry machinery: it picks up
// pending records the API instances left behind and runs the expiry cleanup.
func main() {
	cfg := config.Load()
	cfg.NATS.ClientID = "campreg-worker"
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", "error", err)
	}
	defer natsClient.Close()

	ticketingClient := external.NewPretixClient(cfg.Pretix)
	resolver := inventory.NewResolver(cfg.IdentityKeywords())
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, natsClient, ticketingClient, resolver, cfg.Retry)
	defer services.Retries.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resumed, err := services.Retries.ResumePending(ctx)
	if err != nil {
		logger.Get().Error("Failed to resume pending retries", "error", err)
	} else {
		logger.Get().Info("Worker started", "resumed_records", resumed)
	}

	cleanup := jobs.NewRetryCleanupJob(services.Retries, cfg.CleanupInterval,
		time.Duration(cfg.CleanupMaxAgeHours)*time.Hour)
	cleanup.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Get().Info("Shutting down worker...")
	cleanup.Stop()
	cancel()
	logger.Get().Info("Worker stopped")
}
