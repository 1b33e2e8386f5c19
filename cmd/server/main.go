package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/streadway/amqp"

	"github.com/unclebandit/payleopard-backend/internal/config"
	"github.com/unclebandit/payleopard-backend/internal/controller"
	"github.com/unclebandit/payleopard-backend/internal/db"
	"github.com/unclebandit/payleopard-backend/internal/gateway"
	"github.com/unclebandit/payleopard-backend/internal/handler"
	"github.com/unclebandit/payleopard-backend/internal/queue"
	"github.com/unclebandit/payleopard-backend/internal/repository"
	"github.com/unclebandit/payleopard-backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if cfg.DB.RunMigrations {
		if err := db.Migrate(cfg.DB.URL); err != nil {
			logger.Error("migration error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	conn, err := db.Open(cfg.DB.URL)
	if err != nil {
		logger.Error("database connection error", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	amqpConn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", slog.Any("error", err))
		os.Exit(1)
	}
	defer amqpConn.Close()

	jobs, err := queue.NewAMQPPublisher(amqpConn, cfg.AMQP.Queue)
	if err != nil {
		logger.Error("failed to set up job publisher", slog.Any("error", err))
		os.Exit(1)
	}
	defer jobs.Close()

	events := queue.NewInMemoryQueue(logger)
	// Notification delivery is external; this subscriber just makes the
	// lifecycle hook observable.
	events.Subscribe(queue.EventsTopic, func(payload any) error {
		if ev, ok := payload.(queue.CampaignEvent); ok {
			logger.Info("campaign event",
				slog.String("campaign_id", ev.CampaignID),
				slog.String("status", ev.Status))
		}
		return nil
	})

	campaignRepo := &repository.CampaignRepository{DB: conn}
	tracker := service.NewProgressTracker(campaignRepo, logger)
	tracker.MaxAttempts = cfg.Orch.TrackerMaxAttempts
	executor := &service.ItemExecutor{
		Gateway: &gateway.MockGateway{FailureRate: 0.1},
		Ledger:  &gateway.MemoryLedger{},
		Logger:  logger,
	}

	orchestrator := service.NewOrchestrator(campaignRepo, tracker, executor, events, logger)
	orchestrator.BatchSize = cfg.Orch.BatchSize
	orchestrator.BatchDelay = time.Duration(cfg.Orch.BatchDelayMS) * time.Millisecond

	exports := &service.ExportService{Repo: campaignRepo, Logger: logger}

	campaignController := &controller.CampaignController{
		Orchestrator: orchestrator,
		Jobs:         jobs,
		Logger:       logger,
	}
	reportHandler := &handler.ReportHandler{Exports: exports}

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/process", campaignController.ProcessCampaign)
	r.Post("/campaigns/{id}/retry", campaignController.RetryCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Get("/campaigns/{id}/export", reportHandler.ExportCampaignItems)
	r.Get("/stats", reportHandler.OwnerStats)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: r,
	}

	go func() {
		logger.Info("server listening", slog.Int("port", int(cfg.HTTP.Port)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	} else {
		logger.Info("server gracefully stopped")
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var h slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	if cfg.Log.SlogFormat() == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h)
}
