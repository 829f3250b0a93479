// internal/service/normalizer.go
package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	appErrors "github.com/agentzero/phishsim-backend/internal/errors"
	"github.com/agentzero/phishsim-backend/internal/model"
)

// InboundEvent is the canonical form of one provider webhook, decoded once
// by the normalizer and never re-parsed downstream.
type InboundEvent struct {
	Type            model.EventType
	ProviderEventID string
	ProviderEmailID string
	Recipient       string
	OccurredAt      time.Time
	TagUserID       string
	TagCampaignID   string
	ClickedLink     string
	Raw             json.RawMessage
}

// Normalizer verifies the webhook signature and maps the provider payload
// to an InboundEvent.
type Normalizer struct {
	// SigningSecret is the shared webhook secret. Empty disables
	// verification; a configured secret only applies when the request
	// actually carries a signature header.
	SigningSecret string
}

type providerTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// address accepts both a bare string and an array of strings, since the
// provider sends "to" either way.
type address string

func (a *address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = address(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*a = address(list[0])
	}
	return nil
}

type providerPayload struct {
	Type       string        `json:"type"`
	ID         string        `json:"id"`
	CreatedAt  string        `json:"created_at"`
	CreatedAt2 string        `json:"createdAt"`
	EmailID    string        `json:"email_id"`
	To         address       `json:"to"`
	Tags       []providerTag `json:"tags"`
	Data       struct {
		ID          string        `json:"id"`
		EmailID     string        `json:"email_id"`
		To          address       `json:"to"`
		Email       string        `json:"email"`
		Tags        []providerTag `json:"tags"`
		Link        string        `json:"link"`
		URL         string        `json:"url"`
		ClickedLink string        `json:"clicked_link"`
	} `json:"data"`
}

// Normalize validates and decodes a raw webhook body. receivedAt is only
// used when the payload carries no usable timestamp of its own; status
// timestamps downstream must reflect provider-side ordering.
func (n *Normalizer) Normalize(body []byte, signature string, receivedAt time.Time) (*InboundEvent, error) {
	if n.SigningSecret != "" && signature != "" {
		if !verifySignature(body, signature, n.SigningSecret) {
			return nil, appErrors.ErrInvalidSignature
		}
	}

	var p providerPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, appErrors.ErrMalformedPayload
	}

	in := &InboundEvent{
		Type: model.ParseEventType(p.Type),
		Raw:  json.RawMessage(body),
	}

	in.ProviderEventID = firstNonEmpty(p.ID, p.Data.ID)
	in.ProviderEmailID = firstNonEmpty(p.Data.EmailID, p.Data.ID, p.EmailID)
	in.Recipient = firstNonEmpty(string(p.Data.To), p.Data.Email, string(p.To))
	in.ClickedLink = firstNonEmpty(p.Data.Link, p.Data.URL, p.Data.ClickedLink)

	in.OccurredAt = receivedAt
	if raw := firstNonEmpty(p.CreatedAt, p.CreatedAt2); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			in.OccurredAt = t
		}
	}

	// tags are advisory only; the resolver's own lookup wins when both exist
	tags := p.Data.Tags
	if len(tags) == 0 {
		tags = p.Tags
	}
	for _, tag := range tags {
		switch tag.Name {
		case "userId":
			if in.TagUserID == "" {
				in.TagUserID = tag.Value
			}
		case "campaignId":
			if in.TagCampaignID == "" {
				in.TagCampaignID = tag.Value
			}
		}
	}

	return in, nil
}

// verifySignature checks an HMAC-SHA256 signature in "sha256=<hex>" format
// against the raw body. hmac.Equal gives the constant-time compare.
func verifySignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	provided := strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(expected), []byte(provided))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
