package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/unclebandit/payleopard-backend/internal/model"
	"github.com/unclebandit/payleopard-backend/internal/queue"
	"github.com/unclebandit/payleopard-backend/internal/repository"
)

// Reaper runs the time-driven scans. It has no timer of its own: an
// external scheduler (cron, systemd timer) invokes the scan entry points
// on whatever cadence it likes. Every scan is idempotent and tolerates
// partial execution; an interrupted run is simply continued by the next.
type Reaper struct {
	Repo         repository.CampaignRepositoryInterface
	Orchestrator *Orchestrator
	Events       queue.Queue
	Logger       *slog.Logger
	ScanLimit    int
	Retention    time.Duration
	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

func NewReaper(repo repository.CampaignRepositoryInterface, orch *Orchestrator, events queue.Queue, logger *slog.Logger) *Reaper {
	return &Reaper{
		Repo:         repo,
		Orchestrator: orch,
		Events:       events,
		Logger:       logger,
		ScanLimit:    100,
		Retention:    90 * 24 * time.Hour,
	}
}

func (r *Reaper) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// RunDueScan starts every scheduled campaign whose due instant has
// passed. The orchestrator's start guard makes overlapping scans safe:
// whichever run wins the transition processes the campaign, the other
// sees a no-op. Returns how many campaigns were handed to the
// orchestrator.
func (r *Reaper) RunDueScan(ctx context.Context) (int, error) {
	due, err := r.Repo.FindDueScheduled(r.now(), r.ScanLimit)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, c := range due {
		if err := r.Orchestrator.Process(ctx, c.ID); err != nil {
			// Per-campaign isolation: log and keep scanning.
			r.Logger.Error("due campaign failed to process",
				slog.String("campaign_id", c.ID),
				slog.Any("error", err))
			continue
		}
		started++
	}
	return started, nil
}

// RunExpiryScan expires split campaigns past their deadline that never
// finished. Items already paid are left untouched; only the campaign
// status moves.
func (r *Reaper) RunExpiryScan(ctx context.Context) (int, error) {
	expired, err := r.Repo.FindExpired(r.now(), r.ScanLimit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, c := range expired {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		ok, err := r.Repo.TransitionStatus(c.ID,
			[]model.CampaignStatus{model.StatusPending, model.StatusProcessing},
			model.StatusExpired)
		if err != nil {
			r.Logger.Error("failed to expire campaign",
				slog.String("campaign_id", c.ID),
				slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		count++
		if r.Events != nil {
			_ = r.Events.Publish(queue.EventsTopic, queue.CampaignEvent{
				CampaignID: c.ID,
				Status:     string(model.StatusExpired),
			})
		}
	}
	return count, nil
}

// RunRetentionSweep deletes terminal campaigns whose last update is older
// than the retention window.
func (r *Reaper) RunRetentionSweep(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-r.Retention)
	deleted, err := r.Repo.DeleteTerminalBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.Logger.Info("retention sweep removed campaigns",
			slog.Int64("deleted", deleted))
	}
	return deleted, nil
}
