package model

import "time"

type CampaignKind string

const (
	KindBulk      CampaignKind = "bulk"
	KindSplit     CampaignKind = "split"
	KindScheduled CampaignKind = "scheduled"
)

type CampaignStatus string

const (
	StatusPending    CampaignStatus = "pending"
	StatusScheduled  CampaignStatus = "scheduled"
	StatusProcessing CampaignStatus = "processing"
	StatusCompleted  CampaignStatus = "completed"
	StatusPartial    CampaignStatus = "partial"
	StatusFailed     CampaignStatus = "failed"
	StatusCanceled   CampaignStatus = "canceled"
	StatusExpired    CampaignStatus = "expired"
)

// Campaign is the parent record for one payment campaign: a bulk payout,
// a split payment, or a scheduled payment. TotalAmount is in minor units
// and is fixed at creation. SuccessCount and FailureCount are always
// recomputed from Items, never incremented in place.
type Campaign struct {
	ID           string         `db:"id" json:"id"`
	Kind         CampaignKind   `db:"kind" json:"kind"`
	Currency     string         `db:"currency" json:"currency"`
	TotalAmount  int64          `db:"total_amount" json:"total_amount"`
	Description  string         `db:"description" json:"description"`
	Status       CampaignStatus `db:"status" json:"status"`
	SuccessCount int            `db:"success_count" json:"success_count"`
	FailureCount int            `db:"failure_count" json:"failure_count"`
	CreatedBy    string         `db:"created_by" json:"created_by"`
	ExpiresAt    *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	ScheduledFor *time.Time     `db:"scheduled_for" json:"scheduled_for,omitempty"`
	LastError    string         `db:"last_error" json:"last_error,omitempty"`
	Version      int64          `db:"version" json:"-"`
	Items        []LineItem     `db:"-" json:"items,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether no further automatic transition can occur.
// Partial counts as terminal: only an explicit retry or cancel moves it on.
func (s CampaignStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Startable reports whether a process call may move the campaign into
// processing. This is the double-start guard.
func (s CampaignStatus) Startable() bool {
	return s == StatusPending || s == StatusScheduled
}

// CountOutcomes tallies terminal item states from the item list itself.
func CountOutcomes(items []LineItem) (succeeded, failed int) {
	for _, it := range items {
		switch it.Status {
		case ItemSucceeded:
			succeeded++
		case ItemFailed:
			failed++
		}
	}
	return succeeded, failed
}

// FinalStatus computes the campaign outcome once every item is terminal:
// completed when all succeeded, failed when all failed, partial otherwise.
// The second return is false while any item is still pending.
func FinalStatus(items []LineItem) (CampaignStatus, bool) {
	succeeded, failed := CountOutcomes(items)
	if succeeded+failed < len(items) {
		return "", false
	}
	switch {
	case failed == 0 && succeeded == len(items) && len(items) > 0:
		return StatusCompleted, true
	case succeeded == 0:
		return StatusFailed, true
	default:
		return StatusPartial, true
	}
}
