package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/payleopard-backend/internal/errors"
	"github.com/unclebandit/payleopard-backend/internal/gateway"
	"github.com/unclebandit/payleopard-backend/internal/model"
	"github.com/unclebandit/payleopard-backend/internal/queue"
	"github.com/unclebandit/payleopard-backend/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(repo *memoryRepo, gw gateway.Gateway) (*service.Orchestrator, *queue.Collector) {
	logger := testLogger()
	tracker := service.NewProgressTracker(repo, logger)
	tracker.Backoff = time.Millisecond
	executor := &service.ItemExecutor{
		Gateway: gw,
		Ledger:  &gateway.MemoryLedger{},
		Logger:  logger,
	}
	events := &queue.Collector{}
	o := service.NewOrchestrator(repo, tracker, executor, events, logger)
	o.BatchDelay = 0
	return o, events
}

func bulkRequest(amounts ...int64) *service.CreateCampaignRequest {
	req := &service.CreateCampaignRequest{
		Kind:      model.KindBulk,
		Currency:  "usd",
		CreatedBy: "owner-1",
	}
	for i, a := range amounts {
		req.Items = append(req.Items, service.CreateItemRequest{
			RecipientEmail: []string{"alice@example.com", "bob@example.com", "carol@example.com", "dave@example.com"}[i%4],
			RecipientName:  "Recipient",
			Amount:         a,
		})
	}
	return req
}

// failRecipients returns a gateway that declines attempts for the given
// recipient emails and accepts everything else.
func failRecipients(emails ...string) *gateway.MockGateway {
	deny := map[string]bool{}
	for _, e := range emails {
		deny[e] = true
	}
	return &gateway.MockGateway{FailFunc: func(req gateway.PaymentRequest) error {
		if deny[req.RecipientEmail] {
			return errors.New("card declined")
		}
		return nil
	}}
}

func TestBulkCampaignPartialOutcome(t *testing.T) {
	repo := newMemoryRepo()
	o, events := newTestOrchestrator(repo, failRecipients("bob@example.com"))

	c, err := o.CreateCampaign(bulkRequest(100, 200, 300))
	require.NoError(t, err)
	assert.Equal(t, int64(600), c.TotalAmount)
	assert.Equal(t, model.StatusPending, c.Status)

	require.NoError(t, o.Process(context.Background(), c.ID))

	got, err := repo.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartial, got.Status)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount)
	assert.Equal(t, int64(600), got.TotalAmount, "total must not change after processing")

	for _, it := range got.Items {
		if it.RecipientEmail == "bob@example.com" {
			assert.Equal(t, model.ItemFailed, it.Status)
			assert.Equal(t, "card declined", it.ErrorMessage)
			assert.Empty(t, it.GatewayReference)
		} else {
			assert.Equal(t, model.ItemSucceeded, it.Status)
			assert.NotEmpty(t, it.GatewayReference)
			assert.Empty(t, it.ErrorMessage)
		}
	}

	var last queue.CampaignEvent
	evs := events.Events()
	require.NotEmpty(t, evs)
	last = evs[len(evs)-1]
	assert.Equal(t, string(model.StatusPartial), last.Status)
}

func TestAllItemsSucceedCompletesCampaign(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, &gateway.MockGateway{})

	c, err := o.CreateCampaign(bulkRequest(100, 200))
	require.NoError(t, err)
	require.NoError(t, o.Process(context.Background(), c.ID))

	got, _ := repo.GetByID(c.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Zero(t, got.FailureCount)
}

func TestAllItemsFailFailsCampaign(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, failRecipients("alice@example.com", "bob@example.com"))

	c, err := o.CreateCampaign(bulkRequest(100, 200))
	require.NoError(t, err)
	require.NoError(t, o.Process(context.Background(), c.ID))

	got, _ := repo.GetByID(c.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Zero(t, got.SuccessCount)
	assert.Equal(t, 2, got.FailureCount)
}

func TestProcessTwiceIsNoOp(t *testing.T) {
	repo := newMemoryRepo()
	var calls atomic.Int32
	gw := &gateway.MockGateway{FailFunc: func(gateway.PaymentRequest) error {
		calls.Add(1)
		return nil
	}}
	o, _ := newTestOrchestrator(repo, gw)

	c, err := o.CreateCampaign(bulkRequest(100, 200, 300))
	require.NoError(t, err)

	require.NoError(t, o.Process(context.Background(), c.ID))
	require.NoError(t, o.Process(context.Background(), c.ID))

	assert.Equal(t, int32(3), calls.Load(), "second process must not re-dispatch items")
}

func TestRetryClosedLoop(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, failRecipients("alice@example.com", "bob@example.com"))

	c, err := o.CreateCampaign(bulkRequest(100, 200))
	require.NoError(t, err)
	require.NoError(t, o.Process(context.Background(), c.ID))

	got, _ := repo.GetByID(c.ID)
	require.Equal(t, model.StatusFailed, got.Status)

	// Gateway recovered; retry must clear errors and drive every item to
	// a terminal state again.
	o.Executor.Gateway = &gateway.MockGateway{}
	require.NoError(t, o.Retry(context.Background(), c.ID))

	got, _ = repo.GetByID(c.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Zero(t, got.FailureCount)
	for _, it := range got.Items {
		assert.Equal(t, model.ItemSucceeded, it.Status)
		assert.Empty(t, it.ErrorMessage)
	}
}

func TestRetryWithoutFailedItems(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, &gateway.MockGateway{})

	c, err := o.CreateCampaign(bulkRequest(100))
	require.NoError(t, err)
	require.NoError(t, o.Process(context.Background(), c.ID))

	err = o.Retry(context.Background(), c.ID)
	var transition *appErrors.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
}

// cancelOnResetRepo flips the campaign to canceled just before the
// failed-item reset runs, modeling an operator cancel landing between
// Retry's status check and the reset.
type cancelOnResetRepo struct {
	*memoryRepo
}

func (r *cancelOnResetRepo) ResetFailedItems(campaignID string) (int, error) {
	_, _ = r.memoryRepo.TransitionStatus(campaignID,
		[]model.CampaignStatus{model.StatusPartial, model.StatusFailed, model.StatusProcessing},
		model.StatusCanceled)
	return r.memoryRepo.ResetFailedItems(campaignID)
}

func TestCancelRacingRetryKeepsCampaignCanceled(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, failRecipients("bob@example.com"))

	c, err := o.CreateCampaign(bulkRequest(100, 200, 300))
	require.NoError(t, err)
	require.NoError(t, o.Process(context.Background(), c.ID))

	before, _ := repo.GetByID(c.ID)
	require.Equal(t, model.StatusPartial, before.Status)

	racing := &cancelOnResetRepo{memoryRepo: repo}
	tracker := service.NewProgressTracker(racing, testLogger())
	tracker.Backoff = time.Millisecond
	o2 := service.NewOrchestrator(racing, tracker, o.Executor, &queue.Collector{}, testLogger())
	o2.BatchDelay = 0

	err = o2.Retry(context.Background(), c.ID)
	var transition *appErrors.InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	// The cancel must win: no item reset, no resurrection to processing.
	got, _ := repo.GetByID(c.ID)
	assert.Equal(t, model.StatusCanceled, got.Status)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount)
	for _, it := range got.Items {
		if it.RecipientEmail == "bob@example.com" {
			assert.Equal(t, model.ItemFailed, it.Status)
			assert.Equal(t, "card declined", it.ErrorMessage)
		}
	}
}

func TestCancelPendingCampaign(t *testing.T) {
	repo := newMemoryRepo()
	o, events := newTestOrchestrator(repo, &gateway.MockGateway{})

	c, err := o.CreateCampaign(bulkRequest(100))
	require.NoError(t, err)
	require.NoError(t, o.Cancel(c.ID))

	got, _ := repo.GetByID(c.ID)
	assert.Equal(t, model.StatusCanceled, got.Status)

	evs := events.Events()
	assert.Equal(t, string(model.StatusCanceled), evs[len(evs)-1].Status)
}

func TestCancelCompletedCampaignRejected(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, &gateway.MockGateway{})

	c, err := o.CreateCampaign(bulkRequest(100))
	require.NoError(t, err)
	require.NoError(t, o.Process(context.Background(), c.ID))

	err = o.Cancel(c.ID)
	var transition *appErrors.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
}

func TestInfrastructureErrorFailsCampaign(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, &gateway.MockGateway{})

	c, err := o.CreateCampaign(bulkRequest(100, 200))
	require.NoError(t, err)

	repo.commitErr = errors.New("store unavailable")
	err = o.Process(context.Background(), c.ID)

	var orch *appErrors.OrchestrationError
	require.ErrorAs(t, err, &orch)

	repo.commitErr = nil
	got, _ := repo.GetByID(c.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "store unavailable")
}

func TestOutcomeAfterCancelKeptForAudit(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, &gateway.MockGateway{})

	c, err := o.CreateCampaign(bulkRequest(100))
	require.NoError(t, err)
	require.NoError(t, o.Cancel(c.ID))

	// An in-flight executor finishing after the cancel still records its
	// result, but the campaign status and counters stay put.
	err = o.Tracker.RecordOutcome(c.ID, c.Items[0].ID, service.Outcome{
		Status:           model.ItemSucceeded,
		GatewayReference: "pi_late",
	})
	require.NoError(t, err)

	got, _ := repo.GetByID(c.ID)
	assert.Equal(t, model.StatusCanceled, got.Status)
	assert.Zero(t, got.SuccessCount)
	assert.Equal(t, model.ItemSucceeded, got.Items[0].Status)
	assert.Equal(t, "pi_late", got.Items[0].GatewayReference)
}

func TestListCampaignsPagination(t *testing.T) {
	repo := newMemoryRepo()
	o, _ := newTestOrchestrator(repo, &gateway.MockGateway{})

	for i := 0; i < 5; i++ {
		_, err := o.CreateCampaign(bulkRequest(100))
		require.NoError(t, err)
	}

	campaigns, pagination, err := o.ListCampaigns(1, 2, "owner-1", "", "")
	require.NoError(t, err)
	assert.Len(t, campaigns, 2)
	assert.Equal(t, 5, pagination["total_count"])
	assert.Equal(t, 3, pagination["total_pages"])
}
