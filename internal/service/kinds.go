package service

import (
	"time"

	appErrors "github.com/unclebandit/payleopard-backend/internal/errors"
	"github.com/unclebandit/payleopard-backend/internal/gateway"
	"github.com/unclebandit/payleopard-backend/internal/model"
)

// maxItems caps how many line items one campaign may carry.
const maxItems = 1000

type CreateItemRequest struct {
	RecipientEmail string `json:"recipient_email"`
	RecipientName  string `json:"recipient_name"`
	Amount         int64  `json:"amount"`
	Description    string `json:"description"`
}

type CreateCampaignRequest struct {
	Kind         model.CampaignKind  `json:"kind"`
	Currency     string              `json:"currency"`
	TotalAmount  int64               `json:"total_amount"`
	Description  string              `json:"description"`
	CreatedBy    string              `json:"created_by"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
	ScheduledFor *time.Time          `json:"scheduled_for,omitempty"`
	Items        []CreateItemRequest `json:"items"`
}

// kindStrategy injects the per-kind validation and time-field rules into
// the shared orchestration path. One tagged-variant Campaign, three
// strategies, instead of three parallel services.
type kindStrategy interface {
	Validate(req *CreateCampaignRequest, now time.Time) error
	InitialStatus() model.CampaignStatus
}

var kindStrategies = map[model.CampaignKind]kindStrategy{
	model.KindBulk:      bulkStrategy{},
	model.KindSplit:     splitStrategy{},
	model.KindScheduled: scheduledStrategy{},
}

// validateItems covers the rules shared by every kind.
func validateItems(req *CreateCampaignRequest) error {
	if req.Currency == "" {
		return appErrors.NewValidation("currency is required")
	}
	if req.CreatedBy == "" {
		return appErrors.NewValidation("created_by is required")
	}
	if len(req.Items) == 0 {
		return appErrors.NewValidation("campaign must have at least one item")
	}
	if len(req.Items) > maxItems {
		return appErrors.NewValidation("campaign has %d items, maximum is %d", len(req.Items), maxItems)
	}
	for i, it := range req.Items {
		if it.RecipientEmail == "" {
			return appErrors.NewValidation("item %d: recipient_email is required", i)
		}
		if it.Amount < gateway.MinChargeAmount {
			return appErrors.NewValidation("item %d: amount %d is below the gateway minimum %d",
				i, it.Amount, gateway.MinChargeAmount)
		}
	}
	return nil
}

func itemSum(items []CreateItemRequest) int64 {
	var sum int64
	for _, it := range items {
		sum += it.Amount
	}
	return sum
}

// bulkStrategy: a payout to many recipients. The total is the exact item
// sum; when the request omits it, it is derived.
type bulkStrategy struct{}

func (bulkStrategy) Validate(req *CreateCampaignRequest, _ time.Time) error {
	sum := itemSum(req.Items)
	if req.TotalAmount == 0 {
		req.TotalAmount = sum
	} else if req.TotalAmount != sum {
		return appErrors.NewValidation("item amounts sum to %d, total_amount is %d", sum, req.TotalAmount)
	}
	return nil
}

func (bulkStrategy) InitialStatus() model.CampaignStatus { return model.StatusPending }

// splitStrategy: one payment split across several payers. Participant
// amounts must reach the declared total within one minor unit of rounding
// slack per participant, and the campaign carries an expiry instant.
type splitStrategy struct{}

func (splitStrategy) Validate(req *CreateCampaignRequest, now time.Time) error {
	if req.TotalAmount <= 0 {
		return appErrors.NewValidation("total_amount must be positive for a split campaign")
	}
	sum := itemSum(req.Items)
	tolerance := int64(len(req.Items))
	if diff := sum - req.TotalAmount; diff > tolerance || diff < -tolerance {
		return appErrors.NewValidation("participant amounts sum to %d, total_amount is %d (tolerance %d)",
			sum, req.TotalAmount, tolerance)
	}
	if req.ExpiresAt == nil {
		return appErrors.NewValidation("expires_at is required for a split campaign")
	}
	if !req.ExpiresAt.After(now) {
		return appErrors.NewValidation("expires_at must be in the future")
	}
	return nil
}

func (splitStrategy) InitialStatus() model.CampaignStatus { return model.StatusPending }

// scheduledStrategy: a payment deferred to a future instant. Processing
// starts only when the reaper finds it due.
type scheduledStrategy struct{}

func (scheduledStrategy) Validate(req *CreateCampaignRequest, now time.Time) error {
	sum := itemSum(req.Items)
	if req.TotalAmount == 0 {
		req.TotalAmount = sum
	} else if req.TotalAmount != sum {
		return appErrors.NewValidation("item amounts sum to %d, total_amount is %d", sum, req.TotalAmount)
	}
	if req.ScheduledFor == nil {
		return appErrors.NewValidation("scheduled_for is required for a scheduled campaign")
	}
	if !req.ScheduledFor.After(now) {
		return appErrors.NewValidation("scheduled_for must be in the future")
	}
	return nil
}

func (scheduledStrategy) InitialStatus() model.CampaignStatus { return model.StatusScheduled }
