// internal/service/dedup.go
package service

import (
	"context"
	"time"

	"github.com/agentzero/phishsim-backend/internal/model"
)

// EventFinder is the slice of the event store the gate needs.
type EventFinder interface {
	ListRecentByType(ctx context.Context, t model.EventType, from, to time.Time, limit int) ([]model.EmailEvent, error)
}

// Duplicate detection methods, strongest signal first.
const (
	DedupByEmailID           = "by_email_id"
	DedupByProviderID        = "by_provider_id"
	DedupByCampaignRecipient = "by_campaign_recipient"
)

// DedupGate decides whether an incoming event is a repeat of one already
// stored. The provider delivers webhooks at least once, so repeats are
// expected. A candidate is a duplicate if an event of the same type exists
// within ±Window of the incoming occurred-at and one of three matchers
// hits. Matchers run in order of signal strength; first hit wins, this is
// a tie-break and not a best-match search.
type DedupGate struct {
	Events EventFinder

	// Window is the tolerance around the candidate's occurred-at. The
	// provider does not document a bound, so this is a heuristic and
	// configurable, 10s by default.
	Window time.Duration

	// MaxCandidates caps the fetched candidate set.
	MaxCandidates int
}

func NewDedupGate(events EventFinder) *DedupGate {
	return &DedupGate{
		Events:        events,
		Window:        10 * time.Second,
		MaxCandidates: 100,
	}
}

// FindDuplicate returns the matching prior event and the method that
// matched it, or nil when the incoming event is new. resolvedEmailID may be
// empty when the email record has not been found yet; the weaker matchers
// cover that case.
func (g *DedupGate) FindDuplicate(ctx context.Context, in *InboundEvent, resolvedEmailID string) (*model.EmailEvent, string, error) {
	from := in.OccurredAt.Add(-g.Window)
	to := in.OccurredAt.Add(g.Window)

	candidates, err := g.Events.ListRecentByType(ctx, in.Type, from, to, g.MaxCandidates)
	if err != nil {
		return nil, "", err
	}
	if len(candidates) == 0 {
		return nil, "", nil
	}

	matchers := []struct {
		method string
		match  func(model.EmailEvent) bool
	}{
		{DedupByEmailID, func(ev model.EmailEvent) bool {
			return matchesEmailID(ev, resolvedEmailID)
		}},
		{DedupByProviderID, func(ev model.EmailEvent) bool {
			return matchesProviderID(ev, in.ProviderEmailID)
		}},
		{DedupByCampaignRecipient, func(ev model.EmailEvent) bool {
			return matchesCampaignRecipient(ev, in.TagCampaignID, in.Recipient)
		}},
	}

	for _, m := range matchers {
		for i := range candidates {
			if m.match(candidates[i]) {
				return &candidates[i], m.method, nil
			}
		}
	}
	return nil, "", nil
}

// matchesEmailID matches on the resolved internal email link.
func matchesEmailID(ev model.EmailEvent, emailID string) bool {
	return emailID != "" && ev.EmailID != nil && *ev.EmailID == emailID
}

// matchesProviderID matches on the provider email id carried in the stored
// event, which covers events that were never linked.
func matchesProviderID(ev model.EmailEvent, providerID string) bool {
	return providerID != "" && ev.ProviderEmailID != nil && *ev.ProviderEmailID == providerID
}

// matchesCampaignRecipient is the weakest signal, for events where no id of
// any kind could be resolved.
func matchesCampaignRecipient(ev model.EmailEvent, campaignID, recipient string) bool {
	if campaignID == "" || recipient == "" {
		return false
	}
	return ev.CampaignID != nil && *ev.CampaignID == campaignID &&
		ev.Recipient != nil && *ev.Recipient == recipient
}
