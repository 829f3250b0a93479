// internal/model/event.go
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType is the canonical event enum decoded once from the provider's
// "email.*" type string. Unrecognized provider types pass through with the
// raw suffix preserved so new provider events are stored rather than dropped.
type EventType string

const (
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
)

// ParseEventType maps a provider event-type string to the canonical enum.
// Unknown types are passed through with the "email." prefix stripped.
func ParseEventType(provider string) EventType {
	switch provider {
	case "email.sent":
		return EventSent
	case "email.delivered":
		return EventDelivered
	case "email.opened":
		return EventOpened
	case "email.clicked":
		return EventClicked
	case "email.bounced":
		return EventBounced
	case "email.complained":
		return EventComplained
	case "email.unsubscribed":
		return EventUnsubscribed
	}
	return EventType(strings.TrimPrefix(provider, "email."))
}

// Known reports whether the type is one of the canonical lifecycle events.
func (t EventType) Known() bool {
	switch t {
	case EventSent, EventDelivered, EventOpened, EventClicked,
		EventBounced, EventComplained, EventUnsubscribed:
		return true
	}
	return false
}

// EmailEvent is one immutable provider notification. EmailID is null while
// the event is unlinked; NeedsLinking marks rows waiting for the owning
// email record to appear. OccurredAt is the provider's own timestamp, not
// receipt time. The provider email id and event id are denormalized out of
// the raw payload so duplicate checks and relinking do not re-parse it.
type EmailEvent struct {
	ID              string          `db:"id" json:"id"`
	EmailID         *string         `db:"email_id" json:"email_id,omitempty"`
	EventType       EventType       `db:"event_type" json:"event_type"`
	CampaignID      *string         `db:"campaign_id" json:"campaign_id,omitempty"`
	Recipient       *string         `db:"recipient" json:"recipient,omitempty"`
	UserID          *string         `db:"user_id" json:"user_id,omitempty"`
	ProviderEmailID *string         `db:"provider_email_id" json:"provider_email_id,omitempty"`
	ProviderEventID *string         `db:"provider_event_id" json:"provider_event_id,omitempty"`
	ClickedLink     *string         `db:"clicked_link" json:"clicked_link,omitempty"`
	NeedsLinking    bool            `db:"needs_linking" json:"needs_linking"`
	Raw             json.RawMessage `db:"raw" json:"raw,omitempty"`
	OccurredAt      time.Time       `db:"created_at" json:"created_at"`
}
