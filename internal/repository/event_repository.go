package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/agentzero/phishsim-backend/internal/model"
)

type EventRepository struct {
	DB *sql.DB
}

const eventColumns = `id, email_id, event_type, campaign_id, recipient, user_id,
	provider_email_id, provider_event_id, clicked_link, needs_linking, raw, created_at`

// Insert persists one canonical event. The row is written before any status
// reconciliation so the audit trail survives a reconciliation failure.
func (r *EventRepository) Insert(ctx context.Context, ev *model.EmailEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	query := `
		INSERT INTO email_events
		(id, email_id, event_type, campaign_id, recipient, user_id,
		 provider_email_id, provider_event_id, clicked_link, needs_linking, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var raw interface{}
	if len(ev.Raw) > 0 {
		raw = []byte(ev.Raw)
	}
	_, err := r.DB.ExecContext(ctx, query,
		ev.ID, ev.EmailID, ev.EventType, ev.CampaignID, ev.Recipient, ev.UserID,
		ev.ProviderEmailID, ev.ProviderEventID, ev.ClickedLink, ev.NeedsLinking, raw, ev.OccurredAt,
	)
	return err
}

// ListRecentByType returns events of one type whose provider timestamp falls
// inside [from, to]. The duplicate matchers run over this candidate set.
func (r *EventRepository) ListRecentByType(ctx context.Context, t model.EventType, from, to time.Time, limit int) ([]model.EmailEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM email_events
		WHERE event_type = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
		LIMIT $4
	`
	rows, err := r.DB.QueryContext(ctx, query, t, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByEmail returns the full timeline for one email, oldest first.
func (r *EventRepository) ListByEmail(ctx context.Context, emailID string) ([]model.EmailEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM email_events
		WHERE email_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the newest events regardless of type, for the webhook
// endpoint's GET debugging view.
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]model.EmailEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM email_events ORDER BY created_at DESC LIMIT $1`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListUnlinkedByProviderID returns events still waiting to be linked that
// reference the given provider email id, for the backfill pass.
func (r *EventRepository) ListUnlinkedByProviderID(ctx context.Context, providerID string, limit int) ([]model.EmailEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM email_events
		WHERE needs_linking = TRUE AND provider_email_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.DB.QueryContext(ctx, query, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LinkEmail backfills the email link on a previously unlinked event. This is
// the only mutation ever applied to a stored event.
func (r *EventRepository) LinkEmail(ctx context.Context, eventID, emailID string) error {
	query := `UPDATE email_events SET email_id=$2, needs_linking=FALSE WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, eventID, emailID)
	return err
}

func scanEvents(rows *sql.Rows) ([]model.EmailEvent, error) {
	events := []model.EmailEvent{}
	for rows.Next() {
		var ev model.EmailEvent
		var raw []byte
		if err := rows.Scan(
			&ev.ID, &ev.EmailID, &ev.EventType, &ev.CampaignID, &ev.Recipient, &ev.UserID,
			&ev.ProviderEmailID, &ev.ProviderEventID, &ev.ClickedLink, &ev.NeedsLinking, &raw, &ev.OccurredAt,
		); err != nil {
			return nil, err
		}
		ev.Raw = raw
		events = append(events, ev)
	}
	return events, rows.Err()
}
