// internal/model/email.go
package model

import "time"

// EmailStatus is the delivery lifecycle status of one outbound email.
// It only moves forward: pending -> sent -> delivered -> clicked, with
// bounced as a terminal negative state. An open never advances status.
type EmailStatus string

const (
	StatusPending   EmailStatus = "pending"
	StatusSent      EmailStatus = "sent"
	StatusDelivered EmailStatus = "delivered"
	StatusClicked   EmailStatus = "clicked"
	StatusBounced   EmailStatus = "bounced"
)

// statusRank orders the forward lifecycle. Bounced is handled separately
// because it is terminal, not ordered.
func (s EmailStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusClicked:
		return 3
	default:
		return 0
	}
}

// Terminal reports whether the status can no longer advance.
func (s EmailStatus) Terminal() bool {
	return s == StatusBounced
}

// AdvancesTo reports whether moving from s to next is a forward transition.
func (s EmailStatus) AdvancesTo(next EmailStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Email is one outbound simulation email. ProviderEmailID is assigned
// asynchronously by the delivery provider after the send completes, so it
// may still be null while webhooks for the email are already arriving.
// Each *_at timestamp is set at most once, by the first event of its type.
type Email struct {
	ID              string      `db:"id" json:"id"`
	CampaignID      string      `db:"campaign_id" json:"campaign_id"`
	RecipientID     string      `db:"recipient_id" json:"recipient_id"`
	Subject         string      `db:"subject" json:"subject"`
	Body            string      `db:"body" json:"body"`
	Status          EmailStatus `db:"status" json:"status"`
	ProviderEmailID *string     `db:"provider_email_id" json:"provider_email_id,omitempty"`
	SentAt          *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt     *time.Time  `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt        *time.Time  `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt       *time.Time  `db:"clicked_at" json:"clicked_at,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// EmailWithRecipient joins the recipient address onto an email row, used by
// the resolver's campaign-scan fallback.
type EmailWithRecipient struct {
	Email
	RecipientEmail string `db:"recipient_email" json:"recipient_email"`
}

// StatusUpdate is a partial write against an email row. Nil fields are
// left untouched.
type StatusUpdate struct {
	Status      *EmailStatus
	SentAt      *time.Time
	DeliveredAt *time.Time
	OpenedAt    *time.Time
	ClickedAt   *time.Time
}

// Empty reports whether the update would change nothing.
func (u StatusUpdate) Empty() bool {
	return u.Status == nil && u.SentAt == nil && u.DeliveredAt == nil &&
		u.OpenedAt == nil && u.ClickedAt == nil
}
