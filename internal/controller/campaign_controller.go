// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/agentzero/phishsim-backend/internal/errors"
	"github.com/agentzero/phishsim-backend/internal/model"
	"github.com/agentzero/phishsim-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string `json:"name"`
		Subject      string `json:"subject"`
		BaseTemplate string `json:"base_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(body.Name, body.Subject, body.BaseTemplate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaignStats returns a campaign with its engagement statistics.
func (c *CampaignController) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := c.CampaignService.GetCampaignDetailsWithStats(id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

// AddRecipients attaches recipients to a campaign.
func (c *CampaignController) AddRecipients(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")

	var body struct {
		Recipients []struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"recipients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	entries := make([]model.Recipient, 0, len(body.Recipients))
	for _, rec := range body.Recipients {
		entries = append(entries, model.Recipient{Email: rec.Email, Name: rec.Name})
	}

	added, err := c.CampaignService.AddRecipients(campaignID, entries)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  added,
		"count": len(added),
	})
}

// LaunchCampaign creates emails for all recipients and queues them for the
// send worker.
func (c *CampaignController) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := c.CampaignService.LaunchCampaign(id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id":   result.CampaignID,
		"emails_queued": result.EmailsQueued,
		"status":        result.Status,
	})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")

	var body struct {
		RecipientID      string  `json:"recipient_id"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rendered, err := c.CampaignService.RenderPreview(campaignID, body.RecipientID, body.OverrideTemplate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rendered_message": rendered,
		"used_template":    body.OverrideTemplate,
		"recipient_id":     body.RecipientID,
	})
}

// EmailTimeline returns the ordered event history for one email.
func (c *CampaignController) EmailTimeline(w http.ResponseWriter, r *http.Request) {
	emailID := chi.URLParam(r, "id")
	if emailID == "" {
		http.Error(w, "invalid email id", http.StatusBadRequest)
		return
	}

	timeline, err := c.CampaignService.EmailTimeline(r.Context(), emailID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": timeline,
	})
}
