package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/payleopard-backend/internal/errors"
	"github.com/unclebandit/payleopard-backend/internal/model"
	"github.com/unclebandit/payleopard-backend/internal/queue"
	"github.com/unclebandit/payleopard-backend/internal/repository"
)

const (
	defaultBatchSize  = 50
	defaultBatchDelay = 250 * time.Millisecond
)

// Orchestrator owns the campaign state machine and drives execution:
// pending|scheduled -> processing -> completed|partial|failed, with
// canceled reachable from any non-completed state by operator action.
// Items run in fixed-size batches; items inside a batch are concurrent,
// batches themselves are sequential with a small delay between them to
// bound burst load on the gateway.
type Orchestrator struct {
	Repo       repository.CampaignRepositoryInterface
	Tracker    *ProgressTracker
	Executor   *ItemExecutor
	Events     queue.Queue
	Logger     *slog.Logger
	BatchSize  int
	BatchDelay time.Duration
}

func NewOrchestrator(repo repository.CampaignRepositoryInterface, tracker *ProgressTracker, executor *ItemExecutor, events queue.Queue, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		Repo:       repo,
		Tracker:    tracker,
		Executor:   executor,
		Events:     events,
		Logger:     logger,
		BatchSize:  defaultBatchSize,
		BatchDelay: defaultBatchDelay,
	}
}

// CreateCampaign validates the request for its kind and stores the
// campaign atomically with all items pending. Validation errors are
// returned synchronously; nothing is persisted on rejection.
func (o *Orchestrator) CreateCampaign(req *CreateCampaignRequest) (*model.Campaign, error) {
	strategy, ok := kindStrategies[req.Kind]
	if !ok {
		return nil, appErrors.NewValidation("unknown campaign kind %q", req.Kind)
	}
	if err := validateItems(req); err != nil {
		return nil, err
	}
	if err := strategy.Validate(req, time.Now()); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:           uuid.NewString(),
		Kind:         req.Kind,
		Currency:     req.Currency,
		TotalAmount:  req.TotalAmount,
		Description:  req.Description,
		Status:       strategy.InitialStatus(),
		CreatedBy:    req.CreatedBy,
		ExpiresAt:    req.ExpiresAt,
		ScheduledFor: req.ScheduledFor,
	}
	for i, it := range req.Items {
		c.Items = append(c.Items, model.LineItem{
			ID:             uuid.NewString(),
			Position:       i,
			RecipientEmail: it.RecipientEmail,
			RecipientName:  it.RecipientName,
			Amount:         it.Amount,
			Description:    it.Description,
			Status:         model.ItemPending,
		})
	}

	if err := o.Repo.Create(c); err != nil {
		return nil, err
	}
	o.publish(c.ID, c.Status)
	return c, nil
}

// Process starts orchestration for a pending or scheduled campaign. A
// second call while the campaign is already processing (or finished) is a
// no-op: the guarded transition refuses the double start.
func (o *Orchestrator) Process(ctx context.Context, campaignID string) error {
	started, err := o.Repo.TransitionStatus(campaignID,
		[]model.CampaignStatus{model.StatusPending, model.StatusScheduled},
		model.StatusProcessing)
	if err != nil {
		return err
	}
	if !started {
		c, err := o.Repo.GetByID(campaignID)
		if err != nil {
			return err
		}
		o.Logger.Info("process skipped, campaign not startable",
			slog.String("campaign_id", campaignID),
			slog.String("status", string(c.Status)))
		return nil
	}

	o.publish(campaignID, model.StatusProcessing)
	return o.runBatches(ctx, campaignID)
}

// Retry resets every failed item to pending with its error cleared and
// re-runs the full orchestration path. Re-running the whole path, not
// just the failed subset in isolation, makes a crash mid-retry resumable
// by calling Retry again.
func (o *Orchestrator) Retry(ctx context.Context, campaignID string) error {
	c, err := o.Repo.GetByID(campaignID)
	if err != nil {
		return err
	}
	switch c.Status {
	case model.StatusPartial, model.StatusFailed, model.StatusProcessing:
	default:
		return appErrors.NewInvalidTransition(campaignID, string(c.Status), "retry")
	}
	if c.FailureCount == 0 {
		return appErrors.NewInvalidTransition(campaignID, string(c.Status), "retry")
	}

	n, err := o.Repo.ResetFailedItems(campaignID)
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewInvalidTransition(campaignID, string(c.Status), "retry")
	}

	o.Logger.Info("retrying failed items",
		slog.String("campaign_id", campaignID),
		slog.Int("items", n))
	o.publish(campaignID, model.StatusProcessing)
	return o.runBatches(ctx, campaignID)
}

// Cancel flips a non-completed campaign to canceled. Cooperative only:
// in-flight attempts for the current batch still run to completion and
// their outcomes are persisted for audit, but the campaign status never
// advances again.
func (o *Orchestrator) Cancel(campaignID string) error {
	ok, err := o.Repo.TransitionStatus(campaignID,
		[]model.CampaignStatus{model.StatusPending, model.StatusScheduled,
			model.StatusProcessing, model.StatusPartial},
		model.StatusCanceled)
	if err != nil {
		return err
	}
	if !ok {
		c, err := o.Repo.GetByID(campaignID)
		if err != nil {
			return err
		}
		return appErrors.NewInvalidTransition(campaignID, string(c.Status), "cancel")
	}
	o.publish(campaignID, model.StatusCanceled)
	return nil
}

// GetCampaign fetches a campaign with its items.
func (o *Orchestrator) GetCampaign(campaignID string) (*model.Campaign, error) {
	return o.Repo.GetByID(campaignID)
}

// ListCampaigns fetches a principal's campaigns with pagination.
func (o *Orchestrator) ListCampaigns(page, pageSize int, createdBy, kind, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := o.Repo.ListCampaigns(offset, pageSize, createdBy, kind, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// runBatches drives every pending item to a terminal state. Item failures
// never abort the campaign; only an infrastructure error escapes the
// per-item boundary and marks the whole campaign failed. A canceled
// context (shutdown) leaves the campaign processing so a later pass can
// resume it.
func (o *Orchestrator) runBatches(ctx context.Context, campaignID string) error {
	c, err := o.Repo.GetByID(campaignID)
	if err != nil {
		return o.failCampaign(ctx, campaignID, err)
	}

	pending := make([]model.LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		if it.Status == model.ItemPending {
			pending = append(pending, it)
		}
	}

	batchSize := o.BatchSize
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}

	for start := 0; start < len(pending); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, item := range batch {
			item := item
			g.Go(func() error {
				out := o.Executor.Execute(gctx, c, item)
				err := o.Tracker.RecordOutcome(c.ID, item.ID, out)

				var contention *appErrors.ContentionError
				if errors.As(err, &contention) {
					// Not a real outcome; the item stays pending and a
					// later retry pass picks it up.
					o.Logger.Warn("outcome dropped after store contention",
						slog.String("campaign_id", c.ID),
						slog.String("item_id", item.ID))
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return o.failCampaign(ctx, campaignID, err)
		}

		if end < len(pending) {
			time.Sleep(o.BatchDelay)
		}
	}

	final, err := o.Repo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if final.Status.Terminal() {
		o.publish(campaignID, final.Status)
	} else {
		o.Logger.Warn("campaign still has pending items after orchestration",
			slog.String("campaign_id", campaignID),
			slog.String("status", string(final.Status)))
	}
	return nil
}

func (o *Orchestrator) failCampaign(ctx context.Context, campaignID string, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		// Shutdown, not failure: leave the campaign processing so the
		// next process/retry pass resumes it.
		return cause
	}

	o.Logger.Error("orchestration failed",
		slog.String("campaign_id", campaignID),
		slog.Any("error", cause))
	if err := o.Repo.MarkFailed(campaignID, cause.Error()); err != nil {
		o.Logger.Error("failed to record campaign failure",
			slog.String("campaign_id", campaignID),
			slog.Any("error", err))
	}
	o.publish(campaignID, model.StatusFailed)
	return appErrors.NewOrchestration(campaignID, cause)
}

func (o *Orchestrator) publish(campaignID string, status model.CampaignStatus) {
	if o.Events == nil {
		return
	}
	err := o.Events.Publish(queue.EventsTopic, queue.CampaignEvent{
		CampaignID: campaignID,
		Status:     string(status),
	})
	if err != nil {
		o.Logger.Warn("failed to publish campaign event",
			slog.String("campaign_id", campaignID),
			slog.Any("error", err))
	}
}
