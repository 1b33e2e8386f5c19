package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/unclebandit/payleopard-backend/internal/config"
	"github.com/unclebandit/payleopard-backend/internal/db"
	"github.com/unclebandit/payleopard-backend/internal/model"
	"github.com/unclebandit/payleopard-backend/internal/queue"
	"github.com/unclebandit/payleopard-backend/internal/repository"
	"github.com/unclebandit/payleopard-backend/internal/service"
)

// Seeds a handful of demo campaigns, one per kind, for local development.
func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	conn, err := db.Open(cfg.DB.URL)
	if err != nil {
		logger.Error("database connection error", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	orchestrator := service.NewOrchestrator(campaignRepo, nil, nil, queue.NopQueue{}, logger)

	expires := time.Now().Add(72 * time.Hour)
	scheduled := time.Now().Add(24 * time.Hour)

	seeds := []*service.CreateCampaignRequest{
		{
			Kind:        model.KindBulk,
			Currency:    "usd",
			Description: "March contractor payouts",
			CreatedBy:   "demo-user",
			Items: []service.CreateItemRequest{
				{RecipientEmail: "alice@example.com", RecipientName: "Alice Smith", Amount: 125000},
				{RecipientEmail: "bob@example.com", RecipientName: "Bob Jones", Amount: 98000},
				{RecipientEmail: "carol@example.com", RecipientName: "Carol White", Amount: 143500},
			},
		},
		{
			Kind:        model.KindSplit,
			Currency:    "usd",
			TotalAmount: 45000,
			Description: "Team dinner split",
			CreatedBy:   "demo-user",
			ExpiresAt:   &expires,
			Items: []service.CreateItemRequest{
				{RecipientEmail: "dave@example.com", RecipientName: "Dave Brown", Amount: 15000},
				{RecipientEmail: "erin@example.com", RecipientName: "Erin Green", Amount: 15000},
				{RecipientEmail: "frank@example.com", RecipientName: "Frank Black", Amount: 15000},
			},
		},
		{
			Kind:         model.KindScheduled,
			Currency:     "usd",
			Description:  "Monthly rent transfer",
			CreatedBy:    "demo-user",
			ScheduledFor: &scheduled,
			Items: []service.CreateItemRequest{
				{RecipientEmail: "landlord@example.com", RecipientName: "Grace Hall", Amount: 220000},
			},
		},
	}

	for _, req := range seeds {
		c, err := orchestrator.CreateCampaign(req)
		if err != nil {
			logger.Error("seed failed", slog.String("kind", string(req.Kind)), slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("Seeded %s campaign %s (%d items)\n", c.Kind, c.ID, len(c.Items))
	}

	fmt.Println("Database seeding completed successfully!")
}
