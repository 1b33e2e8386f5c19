package controller

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/payleopard-backend/internal/errors"
	"github.com/unclebandit/payleopard-backend/internal/queue"
	"github.com/unclebandit/payleopard-backend/internal/service"
)

// CampaignController maps the campaign operations 1:1 onto HTTP. Process
// and retry are asynchronous: the controller only enqueues a job and
// answers 202; outcomes become visible through campaign and item status.
type CampaignController struct {
	Orchestrator *service.Orchestrator
	Jobs         queue.ProcessPublisher
	Logger       *slog.Logger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := c.Orchestrator.CreateCampaign(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	createdBy := r.URL.Query().Get("created_by")
	kind := r.URL.Query().Get("kind")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.Orchestrator.ListCampaigns(page, pageSize, createdBy, kind, status)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := c.Orchestrator.GetCampaign(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ProcessCampaign(w http.ResponseWriter, r *http.Request) {
	c.enqueue(w, chi.URLParam(r, "id"), queue.ActionProcess)
}

func (c *CampaignController) RetryCampaign(w http.ResponseWriter, r *http.Request) {
	c.enqueue(w, chi.URLParam(r, "id"), queue.ActionRetry)
}

func (c *CampaignController) enqueue(w http.ResponseWriter, campaignID, action string) {
	// Reject unknown ids synchronously; everything after is async.
	if _, err := c.Orchestrator.GetCampaign(campaignID); err != nil {
		writeError(w, err)
		return
	}

	job := queue.ProcessJob{CampaignID: campaignID, Action: action}
	if err := c.Jobs.PublishProcessJob(job); err != nil {
		c.Logger.Error("failed to enqueue process job",
			slog.String("campaign_id", campaignID),
			slog.Any("error", err))
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"campaign_id": campaignID,
		"action":      action,
		"status":      "queued",
	})
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := c.Orchestrator.Cancel(id); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"campaign_id": id,
		"status":      "canceled",
	})
}

func writeError(w http.ResponseWriter, err error) {
	var validation *appErrors.ValidationError
	var notFound *appErrors.ErrCampaignNotFound
	var transition *appErrors.InvalidTransitionError

	switch {
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &transition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
