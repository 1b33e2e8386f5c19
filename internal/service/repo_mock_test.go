package service_test

import (
	"errors"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/payleopard-backend/internal/errors"
	"github.com/unclebandit/payleopard-backend/internal/model"
	"github.com/unclebandit/payleopard-backend/internal/repository"
)

// memoryRepo implements the campaign repository in memory with real
// optimistic-concurrency semantics: reads hand out copies, and commits
// check the version they were read at.
type memoryRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign

	// forceConflicts makes every CommitItemOutcome report a version
	// conflict; commitErr makes it fail outright.
	forceConflicts bool
	commitErr      error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{campaigns: make(map[string]*model.Campaign)}
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.Items = make([]model.LineItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

func (r *memoryRepo) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	for i := range c.Items {
		c.Items[i].CampaignID = c.ID
		c.Items[i].UpdatedAt = now
	}
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *memoryRepo) GetByID(id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (r *memoryRepo) ListCampaigns(offset, limit int, createdBy string, kind, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.CreatedBy != createdBy {
			continue
		}
		if kind != "" && string(c.Kind) != kind {
			continue
		}
		if status != "" && string(c.Status) != status {
			continue
		}
		matched = append(matched, cloneCampaign(c))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *memoryRepo) TransitionStatus(campaignID string, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			c.Version++
			c.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) MarkFailed(campaignID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.Status = model.StatusFailed
	c.LastError = lastError
	c.Version++
	c.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepo) ResetFailedItems(campaignID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return 0, appErrors.NewCampaignNotFound(campaignID)
	}
	switch c.Status {
	case model.StatusPartial, model.StatusFailed, model.StatusProcessing:
	default:
		return 0, nil
	}

	n := 0
	for i := range c.Items {
		if c.Items[i].Status == model.ItemFailed {
			c.Items[i].Status = model.ItemPending
			c.Items[i].ErrorMessage = ""
			c.Items[i].UpdatedAt = time.Now()
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}

	c.SuccessCount, c.FailureCount = model.CountOutcomes(c.Items)
	c.Status = model.StatusProcessing
	c.LastError = ""
	c.Version++
	c.UpdatedAt = time.Now()
	return n, nil
}

func (r *memoryRepo) CommitItemOutcome(c *model.Campaign, item *model.LineItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.commitErr != nil {
		return false, r.commitErr
	}
	if r.forceConflicts {
		return false, nil
	}

	cur, ok := r.campaigns[c.ID]
	if !ok {
		return false, errors.New("campaign vanished")
	}
	if cur.Version != c.Version {
		return false, nil
	}

	cur.Status = c.Status
	cur.SuccessCount = c.SuccessCount
	cur.FailureCount = c.FailureCount
	cur.Version++
	cur.UpdatedAt = time.Now()
	for i := range cur.Items {
		if cur.Items[i].ID == item.ID {
			cur.Items[i].Status = item.Status
			cur.Items[i].GatewayReference = item.GatewayReference
			cur.Items[i].ErrorMessage = item.ErrorMessage
			cur.Items[i].UpdatedAt = time.Now()
			break
		}
	}
	return true, nil
}

func (r *memoryRepo) SaveItem(item *model.LineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		for i := range c.Items {
			if c.Items[i].ID == item.ID {
				c.Items[i].Status = item.Status
				c.Items[i].GatewayReference = item.GatewayReference
				c.Items[i].ErrorMessage = item.ErrorMessage
				c.Items[i].UpdatedAt = time.Now()
				return nil
			}
		}
	}
	return errors.New("item not found")
}

func (r *memoryRepo) FindDueScheduled(now time.Time, limit int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == model.StatusScheduled && c.ScheduledFor != nil && !c.ScheduledFor.After(now) {
			due = append(due, cloneCampaign(c))
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (r *memoryRepo) FindExpired(now time.Time, limit int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expired := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.ExpiresAt == nil || c.ExpiresAt.After(now) {
			continue
		}
		if c.Status != model.StatusPending && c.Status != model.StatusProcessing {
			continue
		}
		expired = append(expired, cloneCampaign(c))
		if len(expired) == limit {
			break
		}
	}
	return expired, nil
}

func (r *memoryRepo) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, c := range r.campaigns {
		if c.Status.Terminal() && c.UpdatedAt.Before(cutoff) {
			delete(r.campaigns, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memoryRepo) OwnerStats(createdBy string) (*model.OwnerStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.OwnerStats{}
	for _, c := range r.campaigns {
		if c.CreatedBy != createdBy {
			continue
		}
		stats.Campaigns++
		stats.Items += len(c.Items)
		stats.Succeeded += c.SuccessCount
		stats.Failed += c.FailureCount
		stats.TotalVolume += c.TotalAmount
	}
	if done := stats.Succeeded + stats.Failed; done > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(done)
	}
	return stats, nil
}

var _ repository.CampaignRepositoryInterface = (*memoryRepo)(nil)
