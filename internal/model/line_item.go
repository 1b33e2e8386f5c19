package model

import "time"

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// LineItem is one individual payment attempt inside a campaign. Amount is
// in minor units. GatewayReference is set only when the gateway accepted
// the attempt; ErrorMessage is set only on failure and cleared when the
// item is reset for retry.
type LineItem struct {
	ID               string     `db:"id" json:"id"`
	CampaignID       string     `db:"campaign_id" json:"campaign_id"`
	Position         int        `db:"position" json:"position"`
	RecipientEmail   string     `db:"recipient_email" json:"recipient_email"`
	RecipientName    string     `db:"recipient_name" json:"recipient_name"`
	Amount           int64      `db:"amount" json:"amount"`
	Description      string     `db:"description" json:"description"`
	Status           ItemStatus `db:"status" json:"status"`
	GatewayReference string     `db:"gateway_reference" json:"gateway_reference,omitempty"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

func (s ItemStatus) Terminal() bool {
	return s == ItemSucceeded || s == ItemFailed
}
