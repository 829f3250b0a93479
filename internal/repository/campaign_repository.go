package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/agentzero/phishsim-backend/internal/errors"
	"github.com/agentzero/phishsim-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	GetByID(id string) (*model.Campaign, error)
	UpdateStatus(campaignID string, status string) error
	Create(c *model.Campaign) error
	GetCampaignStats(campaignID string) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = "draft"
	}
	query := `
		INSERT INTO campaigns (id, name, subject, status, base_template, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.DB.Exec(query, c.ID, c.Name, c.Subject, c.Status, c.BaseTemplate, c.CreatedAt)
	return err
}

func (r *CampaignRepository) UpdateStatus(campaignID string, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, status, time.Now(), campaignID)
	return err
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `
		SELECT id, name, subject, status, base_template, created_at, updated_at
		FROM campaigns WHERE id=$1
	`
	var c model.Campaign
	err := r.DB.QueryRow(query, id).Scan(&c.ID, &c.Name, &c.Subject, &c.Status, &c.BaseTemplate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT id, name, subject, status, base_template, created_at, updated_at FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

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
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Subject, &c.Status, &c.BaseTemplate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// GetCampaignStats counts emails by status for one campaign. The clicked
// status implies delivery even when no delivered event was ever received,
// so the computed delivered count includes clicked rows.
func (r *CampaignRepository) GetCampaignStats(campaignID string) (map[string]int, error) {
	query := `
		SELECT status,
			   COUNT(*),
			   COUNT(opened_at)
		FROM emails
		WHERE campaign_id=$1
		GROUP BY status
	`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"total":     0,
		"pending":   0,
		"sent":      0,
		"delivered": 0,
		"clicked":   0,
		"bounced":   0,
		"opened":    0,
	}
	for rows.Next() {
		var status string
		var count, opened int
		if err := rows.Scan(&status, &count, &opened); err != nil {
			return nil, err
		}
		if _, ok := stats[status]; ok {
			stats[status] = count
		}
		stats["total"] += count
		stats["opened"] += opened
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// clicked implies delivered; delivered implies sent
	stats["delivered"] += stats["clicked"]
	stats["sent"] += stats["delivered"]
	return stats, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
