package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/payleopard-backend/internal/service"
)

// ReportHandler serves the read-only reporting endpoints: the per-item
// CSV export and per-principal aggregate stats.
type ReportHandler struct {
	Exports *service.ExportService
}

func (h *ReportHandler) ExportCampaignItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	export, err := h.Exports.ExportCampaignItems(id)
	if err != nil {
		http.Error(w, "failed to export campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Write(export.Data)
}

func (h *ReportHandler) OwnerStats(w http.ResponseWriter, r *http.Request) {
	createdBy := r.URL.Query().Get("created_by")
	if createdBy == "" {
		http.Error(w, "created_by is required", http.StatusBadRequest)
		return
	}

	stats, err := h.Exports.OwnerStats(createdBy)
	if err != nil {
		http.Error(w, "failed to fetch stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
