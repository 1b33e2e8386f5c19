package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/payleopard-backend/internal/errors"
	"github.com/unclebandit/payleopard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(c *model.Campaign) error
	GetByID(id string) (*model.Campaign, error)
	ListCampaigns(offset, limit int, createdBy string, kind, status string) ([]*model.Campaign, int, error)

	// State machine
	TransitionStatus(campaignID string, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
	MarkFailed(campaignID, lastError string) error
	ResetFailedItems(campaignID string) (int, error)

	// Item outcomes
	CommitItemOutcome(c *model.Campaign, item *model.LineItem) (bool, error)
	SaveItem(item *model.LineItem) error

	// Reaper scans
	FindDueScheduled(now time.Time, limit int) ([]*model.Campaign, error)
	FindExpired(now time.Time, limit int) ([]*model.Campaign, error)
	DeleteTerminalBefore(cutoff time.Time) (int64, error)

	// Reporting
	OwnerStats(createdBy string) (*model.OwnerStats, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, kind, currency, total_amount, description, status,
        success_count, failure_count, created_by, expires_at, scheduled_for,
        last_error, version, created_at, updated_at`

const itemColumns = `id, campaign_id, position, recipient_email, recipient_name,
        amount, description, status, gateway_reference, error_message, updated_at`

// ====================== Campaign CRUD ======================

// Create inserts the campaign and all its items in one transaction, so a
// campaign is never visible without its full pending item list.
func (r *CampaignRepository) Create(c *model.Campaign) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO campaigns (id, kind, currency, total_amount, description, status,
            success_count, failure_count, created_by, expires_at, scheduled_for,
            last_error, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9, '', 0, $10, $10)
    `
	_, err = tx.Exec(query, c.ID, c.Kind, c.Currency, c.TotalAmount, c.Description,
		c.Status, c.CreatedBy, c.ExpiresAt, c.ScheduledFor, now)
	if err != nil {
		return err
	}

	itemQuery := `
        INSERT INTO campaign_items (id, campaign_id, position, recipient_email,
            recipient_name, amount, description, status, gateway_reference,
            error_message, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', '', $9)
    `
	for i := range c.Items {
		it := &c.Items[i]
		it.CampaignID = c.ID
		it.UpdatedAt = now
		_, err = tx.Exec(itemQuery, it.ID, it.CampaignID, it.Position,
			it.RecipientEmail, it.RecipientName, it.Amount, it.Description, it.Status, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}

	items, err := r.listItems(id)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return c, nil
}

func (r *CampaignRepository) listItems(campaignID string) ([]model.LineItem, error) {
	query := `SELECT ` + itemColumns + ` FROM campaign_items WHERE campaign_id=$1 ORDER BY position`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.LineItem{}
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.ID, &it.CampaignID, &it.Position, &it.RecipientEmail,
			&it.RecipientName, &it.Amount, &it.Description, &it.Status,
			&it.GatewayReference, &it.ErrorMessage, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, createdBy string, kind, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE created_by=$1`
	args := []interface{}{createdBy}
	argPos := 2

	if kind != "" {
		query += fmt.Sprintf(" AND kind=$%d", argPos)
		args = append(args, kind)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE created_by=$1`
	argsCount := []interface{}{createdBy}
	argPosCount := 2
	if kind != "" {
		countQuery += fmt.Sprintf(" AND kind=$%d", argPosCount)
		argsCount = append(argsCount, kind)
		argPosCount++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPosCount)
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ====================== State machine ======================

// TransitionStatus moves the campaign to the target status only if its
// current status is one of from. Returns false when the guard rejected
// the move; callers use this as the double-start / double-cancel guard.
func (r *CampaignRepository) TransitionStatus(campaignID string, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	query := `
        UPDATE campaigns
        SET status=$1, version=version+1, updated_at=NOW()
        WHERE id=$2 AND status = ANY($3)
    `
	res, err := r.DB.Exec(query, to, campaignID, pq.Array(fromStr))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed force-fails the campaign after an infrastructure error and
// preserves the cause for operator inspection.
func (r *CampaignRepository) MarkFailed(campaignID, lastError string) error {
	query := `
        UPDATE campaigns
        SET status=$1, last_error=$2, version=version+1, updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.Exec(query, model.StatusFailed, lastError, campaignID)
	return err
}

// ResetFailedItems moves every failed item back to pending with its error
// cleared, recomputes the counters, and re-enters processing. The campaign
// UPDATE carries the same status guard as TransitionStatus, so a cancel
// that lands between the caller's status check and this call wins: the
// whole transaction rolls back and zero is returned. Returns the number of
// items reset; zero means there was nothing to retry.
func (r *CampaignRepository) ResetFailedItems(campaignID string) (int, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
        UPDATE campaign_items
        SET status=$1, error_message='', updated_at=NOW()
        WHERE campaign_id=$2 AND status=$3
    `, model.ItemPending, campaignID, model.ItemFailed)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	var succeeded int
	err = tx.QueryRow(`
        SELECT COUNT(*) FROM campaign_items WHERE campaign_id=$1 AND status=$2
    `, campaignID, model.ItemSucceeded).Scan(&succeeded)
	if err != nil {
		return 0, err
	}

	retryable := []string{
		string(model.StatusPartial),
		string(model.StatusFailed),
		string(model.StatusProcessing),
	}
	res, err = tx.Exec(`
        UPDATE campaigns
        SET status=$1, success_count=$2, failure_count=0, last_error='',
            version=version+1, updated_at=NOW()
        WHERE id=$3 AND status = ANY($4)
    `, model.StatusProcessing, succeeded, campaignID, pq.Array(retryable))
	if err != nil {
		return 0, err
	}
	guarded, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if guarded == 0 {
		return 0, nil
	}

	return int(n), tx.Commit()
}

// ====================== Item outcomes ======================

// CommitItemOutcome writes one merged outcome: the item's new terminal
// state plus the campaign's recomputed counters and status, in a single
// transaction guarded by the campaign's version. Returns false without
// writing anything when a concurrent writer bumped the version first;
// the tracker re-reads and retries.
func (r *CampaignRepository) CommitItemOutcome(c *model.Campaign, item *model.LineItem) (bool, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
        UPDATE campaigns
        SET status=$1, success_count=$2, failure_count=$3, version=version+1, updated_at=NOW()
        WHERE id=$4 AND version=$5
    `, c.Status, c.SuccessCount, c.FailureCount, c.ID, c.Version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.Exec(`
        UPDATE campaign_items
        SET status=$1, gateway_reference=$2, error_message=$3, updated_at=NOW()
        WHERE id=$4
    `, item.Status, item.GatewayReference, item.ErrorMessage, item.ID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// SaveItem persists an item row without touching the campaign. Used to
// keep outcomes for audit after the campaign was canceled or expired.
func (r *CampaignRepository) SaveItem(item *model.LineItem) error {
	query := `
        UPDATE campaign_items
        SET status=$1, gateway_reference=$2, error_message=$3, updated_at=NOW()
        WHERE id=$4
    `
	_, err := r.DB.Exec(query, item.Status, item.GatewayReference, item.ErrorMessage, item.ID)
	return err
}

// ====================== Reaper scans ======================

func (r *CampaignRepository) FindDueScheduled(now time.Time, limit int) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status=$1 AND scheduled_for IS NOT NULL AND scheduled_for <= $2
        ORDER BY scheduled_for
        LIMIT $3`
	return r.queryCampaigns(query, model.StatusScheduled, now, limit)
}

func (r *CampaignRepository) FindExpired(now time.Time, limit int) ([]*model.Campaign, error) {
	nonTerminal := []string{
		string(model.StatusPending),
		string(model.StatusProcessing),
	}
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE expires_at IS NOT NULL AND expires_at <= $1 AND status = ANY($2)
        ORDER BY expires_at
        LIMIT $3`
	return r.queryCampaigns(query, now, pq.Array(nonTerminal), limit)
}

// DeleteTerminalBefore removes terminal campaigns whose last update is
// older than the cutoff. Items go with them via ON DELETE CASCADE.
func (r *CampaignRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	terminal := []string{
		string(model.StatusCompleted),
		string(model.StatusPartial),
		string(model.StatusFailed),
		string(model.StatusCanceled),
		string(model.StatusExpired),
	}
	res, err := r.DB.Exec(`
        DELETE FROM campaigns WHERE status = ANY($1) AND updated_at < $2
    `, pq.Array(terminal), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *CampaignRepository) queryCampaigns(query string, args ...interface{}) ([]*model.Campaign, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ====================== Reporting ======================

func (r *CampaignRepository) OwnerStats(createdBy string) (*model.OwnerStats, error) {
	stats := &model.OwnerStats{}
	err := r.DB.QueryRow(`
        SELECT COUNT(*),
               COALESCE(SUM(success_count), 0),
               COALESCE(SUM(failure_count), 0),
               COALESCE(SUM(total_amount), 0)
        FROM campaigns WHERE created_by=$1
    `, createdBy).Scan(&stats.Campaigns, &stats.Succeeded, &stats.Failed, &stats.TotalVolume)
	if err != nil {
		return nil, err
	}

	err = r.DB.QueryRow(`
        SELECT COUNT(*)
        FROM campaign_items i
        JOIN campaigns c ON c.id = i.campaign_id
        WHERE c.created_by=$1
    `, createdBy).Scan(&stats.Items)
	if err != nil {
		return nil, err
	}

	if done := stats.Succeeded + stats.Failed; done > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(done)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.Kind, &c.Currency, &c.TotalAmount, &c.Description,
		&c.Status, &c.SuccessCount, &c.FailureCount, &c.CreatedBy,
		&c.ExpiresAt, &c.ScheduledFor, &c.LastError, &c.Version,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
