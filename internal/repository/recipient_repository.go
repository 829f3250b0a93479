package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/agentzero/phishsim-backend/internal/model"
)

// RecipientRepositoryInterface defines methods used by service
type RecipientRepositoryInterface interface {
	GetByID(id string) (*model.Recipient, error)
	ListByCampaign(campaignID string) ([]model.Recipient, error)
	Create(rec *model.Recipient) error
}

// RecipientRepository is the concrete implementation
type RecipientRepository struct {
	DB *sql.DB
}

// GetByID fetches a recipient by ID
func (r *RecipientRepository) GetByID(id string) (*model.Recipient, error) {
	query := `
		SELECT id, campaign_id, email, name, created_at
		FROM recipients
		WHERE id = $1
	`
	row := r.DB.QueryRow(query, id)

	var rec model.Recipient
	if err := row.Scan(&rec.ID, &rec.CampaignID, &rec.Email, &rec.Name, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &rec, nil
}

// ListByCampaign fetches all recipients attached to a campaign
func (r *RecipientRepository) ListByCampaign(campaignID string) ([]model.Recipient, error) {
	query := `
		SELECT id, campaign_id, email, name, created_at
		FROM recipients
		WHERE campaign_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rec model.Recipient
		if err := rows.Scan(&rec.ID, &rec.CampaignID, &rec.Email, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

// Create inserts a new recipient
func (r *RecipientRepository) Create(rec *model.Recipient) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now()
	query := `
		INSERT INTO recipients (id, campaign_id, email, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.DB.Exec(query, rec.ID, rec.CampaignID, rec.Email, rec.Name, rec.CreatedAt)
	return err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
