package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"

	"github.com/unclebandit/payleopard-backend/internal/config"
	"github.com/unclebandit/payleopard-backend/internal/db"
	"github.com/unclebandit/payleopard-backend/internal/gateway"
	"github.com/unclebandit/payleopard-backend/internal/queue"
	"github.com/unclebandit/payleopard-backend/internal/repository"
	"github.com/unclebandit/payleopard-backend/internal/service"
)

const maxDeliveryRetries = 3

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

	amqpConn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", slog.Any("error", err))
		os.Exit(1)
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Error("failed to open a channel", slog.Any("error", err))
		os.Exit(1)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		cfg.AMQP.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		logger.Error("failed to declare queue", slog.Any("error", err))
		os.Exit(1)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // manual ack for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Error("failed to register consumer", slog.Any("error", err))
		os.Exit(1)
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	tracker := service.NewProgressTracker(campaignRepo, logger)
	tracker.MaxAttempts = cfg.Orch.TrackerMaxAttempts
	executor := &service.ItemExecutor{
		// TODO: swap MockGateway for the production gateway client once
		// its credentials land in config.
		Gateway: &gateway.MockGateway{FailureRate: 0.1},
		Ledger:  &gateway.MemoryLedger{},
		Logger:  logger,
	}

	orchestrator := service.NewOrchestrator(campaignRepo, tracker, executor, queue.NewInMemoryQueue(logger), logger)
	orchestrator.BatchSize = cfg.Orch.BatchSize
	orchestrator.BatchDelay = time.Duration(cfg.Orch.BatchDelayMS) * time.Millisecond

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("worker running, waiting for jobs", slog.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return
		case d, ok := <-msgs:
			if !ok {
				logger.Error("delivery channel closed")
				return
			}
			handleDelivery(ctx, d, ch, q.Name, orchestrator, logger)
		}
	}
}

// campaignRunner is the slice of the orchestrator the worker drives.
type campaignRunner interface {
	Process(ctx context.Context, campaignID string) error
	Retry(ctx context.Context, campaignID string) error
}

// jobPublisher is satisfied by *amqp.Channel.
type jobPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

func handleDelivery(ctx context.Context, d amqp.Delivery, pub jobPublisher, queueName string, runner campaignRunner, logger *slog.Logger) {
	var job queue.ProcessJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		logger.Error("invalid job payload", slog.Any("error", err))
		d.Ack(false)
		return
	}

	logger.Info("processing job",
		slog.String("campaign_id", job.CampaignID),
		slog.String("action", job.Action))

	var err error
	switch job.Action {
	case queue.ActionRetry:
		err = runner.Retry(ctx, job.CampaignID)
	default:
		err = runner.Process(ctx, job.CampaignID)
	}
	if err == nil {
		d.Ack(false)
		return
	}

	logger.Error("job failed",
		slog.String("campaign_id", job.CampaignID),
		slog.Any("error", err))

	// A plain Nack requeues the delivery with its original headers, so the
	// retry counter would never advance. Republish with the counter bumped
	// and ack the original instead.
	var retryCount int32
	if v, ok := d.Headers["x-retry-count"].(int32); ok {
		retryCount = v
	}
	if retryCount >= maxDeliveryRetries {
		logger.Error("job dropped after max delivery retries",
			slog.String("campaign_id", job.CampaignID),
			slog.Int("retries", int(retryCount)))
		d.Ack(false)
		return
	}

	pubErr := pub.Publish("", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Headers:      amqp.Table{"x-retry-count": retryCount + 1},
	})
	if pubErr != nil {
		logger.Error("failed to republish job", slog.Any("error", pubErr))
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}
