package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/unclebandit/payleopard-backend/internal/gateway"
	"github.com/unclebandit/payleopard-backend/internal/model"
)

// Outcome is the terminal result of one item's attempt.
type Outcome struct {
	Status           model.ItemStatus
	GatewayReference string
	ErrorMessage     string
}

// ItemExecutor performs one line item's attempt against the payment
// gateway and mirrors it into the ledger. Execute never returns an error:
// every gateway or ledger failure becomes a failed Outcome, so one item
// can never abort its siblings.
type ItemExecutor struct {
	Gateway gateway.Gateway
	Ledger  gateway.Ledger
	Logger  *slog.Logger
}

func (e *ItemExecutor) Execute(ctx context.Context, c *model.Campaign, item model.LineItem) Outcome {
	description := item.Description
	if description == "" {
		description = c.Description
	}

	attempt, err := e.Gateway.CreatePaymentAttempt(ctx, gateway.PaymentRequest{
		Amount:         item.Amount,
		Currency:       c.Currency,
		RecipientEmail: item.RecipientEmail,
		RecipientName:  item.RecipientName,
		Description:    description,
	})
	if err != nil {
		e.Logger.Warn("payment attempt declined",
			slog.String("campaign_id", c.ID),
			slog.String("item_id", item.ID),
			slog.Any("error", err))
		return Outcome{Status: model.ItemFailed, ErrorMessage: err.Error()}
	}

	if e.Ledger != nil {
		err = e.Ledger.RecordTransaction(ctx, gateway.Transaction{
			Reference:  attempt.Reference,
			CampaignID: c.ID,
			ItemID:     item.ID,
			Amount:     item.Amount,
			Currency:   c.Currency,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			// The attempt exists at the gateway; keep the reference so an
			// operator can reconcile, but the item counts as failed.
			e.Logger.Warn("ledger record failed",
				slog.String("campaign_id", c.ID),
				slog.String("item_id", item.ID),
				slog.String("reference", attempt.Reference),
				slog.Any("error", err))
			return Outcome{
				Status:           model.ItemFailed,
				GatewayReference: attempt.Reference,
				ErrorMessage:     "ledger record failed: " + err.Error(),
			}
		}
	}

	return Outcome{Status: model.ItemSucceeded, GatewayReference: attempt.Reference}
}
