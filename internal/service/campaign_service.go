// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/agentzero/phishsim-backend/internal/model"
	"github.com/agentzero/phishsim-backend/internal/repository"
)

// Publisher is the queue capability the launch path needs.
type Publisher interface {
	Publish(topic string, payload any) error
}

// EmailStore is the slice of the email repository the campaign service uses.
type EmailStore interface {
	Create(e *model.Email) error
	ListByCampaign(campaignID string) ([]model.Email, error)
}

// TimelineStore is the slice of the event repository the timeline uses.
type TimelineStore interface {
	ListByEmail(ctx context.Context, emailID string) ([]model.EmailEvent, error)
}

// SendQueueTopic is where launched email ids are published for the worker.
const SendQueueTopic = "email_sends"

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	EmailRepo     EmailStore
	EventRepo     TimelineStore
	Queue         Publisher
}

// Result struct for LaunchCampaign
type LaunchCampaignResult struct {
	CampaignID   string
	EmailsQueued int
	Status       string
	EmailIDs     []string
}

type CampaignDetails struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Subject      string         `json:"subject"`
	Status       string         `json:"status"`
	BaseTemplate string         `json:"base_template"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    *time.Time     `json:"updated_at"`
	Stats        map[string]int `json:"stats"`
	OpenRate     float64        `json:"open_rate"`
	ClickRate    float64        `json:"click_rate"`
}

// TimelineEvent is one entry in an email's event timeline.
type TimelineEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

func (s *CampaignService) RenderPreview(campaignID, recipientID string, overrideTemplate *string) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return "", err
	}
	if campaign == nil {
		return "", fmt.Errorf("campaign not found")
	}

	recipient, err := s.RecipientRepo.GetByID(recipientID)
	if err != nil {
		return "", err
	}
	if recipient == nil {
		return "", fmt.Errorf("recipient not found")
	}

	template := campaign.BaseTemplate
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	}
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("template cannot be empty")
	}

	return renderTemplate(template, recipient), nil
}

func renderTemplate(template string, recipient *model.Recipient) string {
	message := template
	message = strings.ReplaceAll(message, "{name}", recipient.Name)
	message = strings.ReplaceAll(message, "{email}", recipient.Email)
	return message
}

// LaunchCampaign creates one pending email row per recipient and queues the
// ids for the send worker. The worker's send-completion write later attaches
// the provider email id that webhooks correlate on.
func (s *CampaignService) LaunchCampaign(campaignID string) (*LaunchCampaignResult, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != "draft" && campaign.Status != "scheduled" && campaign.Status != "sending" {
		return nil, fmt.Errorf("campaign cannot be launched in status: %s", campaign.Status)
	}

	recipients, err := s.RecipientRepo.ListByCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("campaign has no recipients")
	}

	result := &LaunchCampaignResult{
		CampaignID: campaignID,
		Status:     "sending",
		EmailIDs:   []string{},
	}

	for _, recipient := range recipients {
		email := &model.Email{
			CampaignID:  campaignID,
			RecipientID: recipient.ID,
			Subject:     campaign.Subject,
			Body:        renderTemplate(campaign.BaseTemplate, &recipient),
			Status:      model.StatusPending,
		}
		if err := s.EmailRepo.Create(email); err != nil {
			log.Println("⚠️ failed to create email for recipient", recipient.ID, ":", err)
			continue
		}

		if err := s.Queue.Publish(SendQueueTopic, email.ID); err != nil {
			log.Println("⚠️ failed to enqueue email ID", email.ID, ":", err)
			continue
		}

		result.EmailIDs = append(result.EmailIDs, email.ID)
		result.EmailsQueued++
	}

	if campaign.Status != "sending" {
		if err := s.CampaignRepo.UpdateStatus(campaignID, "sending"); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (s *CampaignService) CreateCampaign(name, subject, baseTemplate string) (*model.Campaign, error) {
	c := &model.Campaign{
		Name:         name,
		Subject:      subject,
		BaseTemplate: baseTemplate,
		Status:       "draft",
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddRecipients attaches recipients to a campaign.
func (s *CampaignService) AddRecipients(campaignID string, entries []model.Recipient) ([]model.Recipient, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	added := []model.Recipient{}
	for _, entry := range entries {
		rec := &model.Recipient{
			CampaignID: campaignID,
			Email:      strings.TrimSpace(entry.Email),
			Name:       entry.Name,
		}
		if rec.Email == "" {
			continue
		}
		if err := s.RecipientRepo.Create(rec); err != nil {
			return nil, err
		}
		added = append(added, *rec)
	}
	return added, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
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

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
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

// GetCampaignDetailsWithStats returns a campaign with its engagement stats.
// Rates are computed against delivered, and clicked counts as delivered and
// opened: a click cannot happen without delivery, even when the delivered
// event itself never arrived.
func (s *CampaignService) GetCampaignDetailsWithStats(campaignID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.CampaignRepo.GetCampaignStats(campaignID)
	if err != nil {
		return nil, err
	}

	opened := stats["opened"]
	if stats["clicked"] > opened {
		opened = stats["clicked"]
	}
	stats["opened"] = opened

	var openRate, clickRate float64
	if delivered := stats["delivered"]; delivered > 0 {
		openRate = float64(opened) / float64(delivered) * 100
		clickRate = float64(stats["clicked"]) / float64(delivered) * 100
	}

	return &CampaignDetails{
		ID:           campaign.ID,
		Name:         campaign.Name,
		Subject:      campaign.Subject,
		Status:       campaign.Status,
		BaseTemplate: campaign.BaseTemplate,
		CreatedAt:    campaign.CreatedAt,
		UpdatedAt:    campaign.UpdatedAt,
		Stats:        stats,
		OpenRate:     openRate,
		ClickRate:    clickRate,
	}, nil
}

// EmailTimeline returns the ordered event history for one email.
func (s *CampaignService) EmailTimeline(ctx context.Context, emailID string) ([]TimelineEvent, error) {
	events, err := s.EventRepo.ListByEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}

	timeline := make([]TimelineEvent, 0, len(events))
	for _, ev := range events {
		timeline = append(timeline, TimelineEvent{
			ID:        ev.ID,
			Type:      string(ev.EventType),
			Timestamp: ev.OccurredAt,
			Details:   eventDetails(ev),
		})
	}
	return timeline, nil
}

func eventDetails(ev model.EmailEvent) string {
	if ev.EventType == model.EventClicked && ev.ClickedLink != nil {
		return "Recipient clicked link: " + *ev.ClickedLink
	}
	switch ev.EventType {
	case model.EventSent:
		return "Email successfully sent"
	case model.EventDelivered:
		return "Email delivered to recipient"
	case model.EventOpened:
		return "Email opened by recipient"
	case model.EventClicked:
		return "Recipient clicked link in email"
	case model.EventBounced:
		return "Email bounced - delivery failed"
	case model.EventComplained:
		return "Recipient marked email as spam"
	case model.EventUnsubscribed:
		return "Recipient unsubscribed"
	}
	return "Provider event: " + string(ev.EventType)
}
