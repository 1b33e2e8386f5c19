package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/unclebandit/payleopard-backend/internal/config"
	"github.com/unclebandit/payleopard-backend/internal/db"
	"github.com/unclebandit/payleopard-backend/internal/gateway"
	"github.com/unclebandit/payleopard-backend/internal/queue"
	"github.com/unclebandit/payleopard-backend/internal/repository"
	"github.com/unclebandit/payleopard-backend/internal/service"
)

// The reaper binary runs one pass of the three scans and exits. Cadence
// belongs to the external scheduler (cron every minute is typical).
func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))

	conn, err := db.Open(cfg.DB.URL)
	if err != nil {
		logger.Error("database connection error", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	tracker := service.NewProgressTracker(campaignRepo, logger)
	executor := &service.ItemExecutor{
		Gateway: &gateway.MockGateway{FailureRate: 0.1},
		Ledger:  &gateway.MemoryLedger{},
		Logger:  logger,
	}
	events := queue.NewInMemoryQueue(logger)
	orchestrator := service.NewOrchestrator(campaignRepo, tracker, executor, events, logger)
	orchestrator.BatchSize = cfg.Orch.BatchSize
	orchestrator.BatchDelay = time.Duration(cfg.Orch.BatchDelayMS) * time.Millisecond

	reaper := service.NewReaper(campaignRepo, orchestrator, events, logger)
	reaper.ScanLimit = cfg.Reaper.ScanLimit
	reaper.Retention = time.Duration(cfg.Reaper.RetentionDays) * 24 * time.Hour

	ctx := context.Background()

	started, err := reaper.RunDueScan(ctx)
	if err != nil {
		logger.Error("due scan failed", slog.Any("error", err))
		os.Exit(1)
	}

	expired, err := reaper.RunExpiryScan(ctx)
	if err != nil {
		logger.Error("expiry scan failed", slog.Any("error", err))
		os.Exit(1)
	}

	deleted, err := reaper.RunRetentionSweep(ctx)
	if err != nil {
		logger.Error("retention sweep failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("reaper pass complete",
		slog.Int("started", started),
		slog.Int("expired", expired),
		slog.Int64("deleted", deleted))
}
