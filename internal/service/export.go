package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/unclebandit/payleopard-backend/internal/model"
	"github.com/unclebandit/payleopard-backend/internal/repository"
)

// ExportService is the read-only reporting side: per-item CSV exports and
// per-principal aggregate stats. It never mutates state and never
// retries; failures are reported to the caller as-is.
type ExportService struct {
	Repo   repository.CampaignRepositoryInterface
	Logger *slog.Logger
}

// Export is a serialized delimited-text payload. Delivery (HTTP response,
// file write) belongs to the caller.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportCampaignItems renders the campaign's items as a flat CSV table.
func (s *ExportService) ExportCampaignItems(campaignID string) (*Export, error) {
	c, err := s.Repo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	records := [][]string{
		{"recipient_email", "recipient_name", "amount", "currency", "status", "gateway_reference", "error_message"},
	}
	for _, it := range c.Items {
		records = append(records, []string{
			it.RecipientEmail,
			it.RecipientName,
			strconv.FormatInt(it.Amount, 10),
			c.Currency,
			string(it.Status),
			it.GatewayReference,
			it.ErrorMessage,
		})
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}

	s.Logger.Info("rendered campaign items export",
		slog.String("campaign_id", c.ID),
		slog.Int("rows", len(c.Items)))

	return &Export{
		Filename:    fmt.Sprintf("campaign-%s-items.csv", c.ID),
		ContentType: "text/csv",
		Data:        buf.Bytes(),
	}, nil
}

// OwnerStats aggregates success rate and volume across a principal's
// campaigns.
func (s *ExportService) OwnerStats(createdBy string) (*model.OwnerStats, error) {
	return s.Repo.OwnerStats(createdBy)
}
