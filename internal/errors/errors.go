package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ValidationError rejects a malformed campaign request before any record
// is created. Reason is safe to return to the caller verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid campaign request: " + e.Reason
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a state-machine guard rejection, e.g.
// canceling a completed campaign or retrying one with no failed items.
type InvalidTransitionError struct {
	CampaignID string
	From       string
	Action     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("campaign %s: cannot %s from status %s", e.CampaignID, e.Action, e.From)
}

func NewInvalidTransition(campaignID, from, action string) error {
	return &InvalidTransitionError{CampaignID: campaignID, From: from, Action: action}
}

// ContentionError surfaces a write conflict that survived all retry
// attempts. The affected item stays pending; a later retry pass picks
// it up.
type ContentionError struct {
	CampaignID string
	ItemID     string
	Attempts   int
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("campaign %s item %s: write conflict after %d attempts", e.CampaignID, e.ItemID, e.Attempts)
}

func NewContention(campaignID, itemID string, attempts int) error {
	return &ContentionError{CampaignID: campaignID, ItemID: itemID, Attempts: attempts}
}

// OrchestrationError wraps an infrastructure failure outside the per-item
// boundary. The whole campaign is marked failed and the cause preserved.
type OrchestrationError struct {
	CampaignID string
	Err        error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("campaign %s: orchestration failed: %v", e.CampaignID, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

func NewOrchestration(campaignID string, err error) error {
	return &OrchestrationError{CampaignID: campaignID, Err: err}
}
