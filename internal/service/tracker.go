package service

import (
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/payleopard-backend/internal/errors"
	"github.com/unclebandit/payleopard-backend/internal/model"
	"github.com/unclebandit/payleopard-backend/internal/repository"
)

// ProgressTracker merges one item's terminal outcome into the parent
// campaign. Many executors call RecordOutcome concurrently in any order;
// this is the single synchronization point of the system. Each merge is a
// read-modify-write guarded by the campaign's version: read the record,
// replace the item, recompute both counters from the full item list, and
// commit. A version conflict means a sibling committed first; re-read and
// try again.
type ProgressTracker struct {
	Repo        repository.CampaignRepositoryInterface
	Logger      *slog.Logger
	MaxAttempts int
	Backoff     time.Duration
}

func NewProgressTracker(repo repository.CampaignRepositoryInterface, logger *slog.Logger) *ProgressTracker {
	return &ProgressTracker{
		Repo:        repo,
		Logger:      logger,
		MaxAttempts: 5,
		Backoff:     25 * time.Millisecond,
	}
}

// RecordOutcome applies out to the named item. When the campaign has
// already reached a terminal status (canceled, expired) the item row is
// still persisted for audit but counters and status stay untouched. A
// write conflict that survives every attempt returns ContentionError;
// the item stays pending for a later retry pass.
func (t *ProgressTracker) RecordOutcome(campaignID, itemID string, out Outcome) error {
	if !out.Status.Terminal() {
		return fmt.Errorf("outcome for item %s must be terminal, got %q", itemID, out.Status)
	}

	maxAttempts := t.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c, err := t.Repo.GetByID(campaignID)
		if err != nil {
			return err
		}

		var item *model.LineItem
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				item = &c.Items[i]
				break
			}
		}
		if item == nil {
			return fmt.Errorf("item %s not found in campaign %s", itemID, campaignID)
		}

		item.Status = out.Status
		item.GatewayReference = out.GatewayReference
		item.ErrorMessage = out.ErrorMessage

		if c.Status.Terminal() {
			return t.Repo.SaveItem(item)
		}

		c.SuccessCount, c.FailureCount = model.CountOutcomes(c.Items)
		if final, done := model.FinalStatus(c.Items); done {
			c.Status = final
		}

		ok, err := t.Repo.CommitItemOutcome(c, item)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if t.Logger != nil {
			t.Logger.Debug("outcome commit conflicted, retrying",
				slog.String("campaign_id", campaignID),
				slog.String("item_id", itemID),
				slog.Int("attempt", attempt))
		}
		time.Sleep(time.Duration(attempt) * t.Backoff)
	}

	return appErrors.NewContention(campaignID, itemID, maxAttempts)
}
