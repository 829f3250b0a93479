package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/agentzero/phishsim-backend/internal/model"
)

type EmailRepository struct {
	DB *sql.DB
}

const emailColumns = `id, campaign_id, recipient_id, subject, body, status,
	provider_email_id, sent_at, delivered_at, opened_at, clicked_at, created_at, updated_at`

func scanEmail(row interface{ Scan(...interface{}) error }) (*model.Email, error) {
	var e model.Email
	err := row.Scan(
		&e.ID, &e.CampaignID, &e.RecipientID, &e.Subject, &e.Body, &e.Status,
		&e.ProviderEmailID, &e.SentAt, &e.DeliveredAt, &e.OpenedAt, &e.ClickedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new pending email row for a campaign recipient.
func (r *EmailRepository) Create(e *model.Email) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = model.StatusPending
	}
	query := `
		INSERT INTO emails (id, campaign_id, recipient_id, subject, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.DB.Exec(query, e.ID, e.CampaignID, e.RecipientID, e.Subject, e.Body, e.Status, e.CreatedAt, e.UpdatedAt)
	return err
}

// GetByID fetches an email by its internal ID.
func (r *EmailRepository) GetByID(ctx context.Context, id string) (*model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE id=$1`
	e, err := scanEmail(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// GetByProviderID fetches an email by the provider-assigned external id.
// Returns nil, nil when no row carries that id yet, which is expected while
// the send-completion write has not committed.
func (r *EmailRepository) GetByProviderID(ctx context.Context, providerID string) (*model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE provider_email_id=$1`
	e, err := scanEmail(r.DB.QueryRowContext(ctx, query, providerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListRecentByCampaign returns the newest emails for a campaign joined with
// the recipient address, for the resolver's address-match fallback.
func (r *EmailRepository) ListRecentByCampaign(ctx context.Context, campaignID string, limit int) ([]model.EmailWithRecipient, error) {
	query := `
		SELECT e.id, e.campaign_id, e.recipient_id, e.subject, e.body, e.status,
			   e.provider_email_id, e.sent_at, e.delivered_at, e.opened_at, e.clicked_at,
			   e.created_at, e.updated_at, r.email
		FROM emails e
		JOIN recipients r ON r.id = e.recipient_id
		WHERE e.campaign_id = $1
		ORDER BY e.created_at DESC
		LIMIT $2
	`
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.EmailWithRecipient{}
	for rows.Next() {
		var e model.EmailWithRecipient
		if err := rows.Scan(
			&e.ID, &e.CampaignID, &e.RecipientID, &e.Subject, &e.Body, &e.Status,
			&e.ProviderEmailID, &e.SentAt, &e.DeliveredAt, &e.OpenedAt, &e.ClickedAt,
			&e.CreatedAt, &e.UpdatedAt, &e.RecipientEmail,
		); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ListByCampaign returns all emails for a campaign.
func (r *EmailRepository) ListByCampaign(campaignID string) ([]model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE campaign_id=$1 ORDER BY created_at ASC`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []model.Email{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

// MarkSent records the outcome of an outbound send: provider id, status and
// sent time. Used by the send worker, not the webhook pipeline.
func (r *EmailRepository) MarkSent(ctx context.Context, id, providerID string, sentAt time.Time) error {
	query := `
		UPDATE emails
		SET status=$2, provider_email_id=$3, sent_at=$4, updated_at=NOW()
		WHERE id=$1
	`
	_, err := r.DB.ExecContext(ctx, query, id, model.StatusSent, providerID, sentAt)
	return err
}

// MarkFailed records a permanently failed send.
func (r *EmailRepository) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE emails SET status='failed', updated_at=NOW() WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

// ApplyStatusUpdate writes a partial status/timestamp update. Only non-nil
// fields are touched, so reconciliation never clobbers what it did not read.
func (r *EmailRepository) ApplyStatusUpdate(ctx context.Context, id string, upd model.StatusUpdate) error {
	if upd.Empty() {
		return nil
	}
	query := `UPDATE emails SET
		status       = COALESCE($2, status),
		sent_at      = COALESCE($3, sent_at),
		delivered_at = COALESCE($4, delivered_at),
		opened_at    = COALESCE($5, opened_at),
		clicked_at   = COALESCE($6, clicked_at),
		updated_at   = NOW()
		WHERE id = $1`
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}
	_, err := r.DB.ExecContext(ctx, query, id, status, upd.SentAt, upd.DeliveredAt, upd.OpenedAt, upd.ClickedAt)
	return err
}
