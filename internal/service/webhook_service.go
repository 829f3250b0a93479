// internal/service/webhook_service.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/agentzero/phishsim-backend/internal/errors"
	"github.com/agentzero/phishsim-backend/internal/model"
)

// EventWriter is the slice of the event store the pipeline writes through.
type EventWriter interface {
	Insert(ctx context.Context, ev *model.EmailEvent) error
	LinkEmail(ctx context.Context, eventID, emailID string) error
	ListUnlinkedByProviderID(ctx context.Context, providerID string, limit int) ([]model.EmailEvent, error)
}

// WebhookResult is what the webhook HTTP handler reports back to the
// provider. Duplicate and unresolved events are still successes: the
// provider treats repeated non-2xx responses as delivery failures and
// retries indefinitely.
type WebhookResult struct {
	EventID   string
	Duplicate bool
	Linked    bool
	Message   string
}

// WebhookService runs the webhook pipeline: normalize, dedup, resolve,
// store, reconcile. Each call is independent; concurrency only arises
// across calls, and the pipeline relies on idempotent monotonic updates
// rather than locking.
type WebhookService struct {
	Normalizer *Normalizer
	Dedup      *DedupGate
	Resolver   *Resolver
	Reconciler *Reconciler
	Events     EventWriter

	// BackfillLimit caps the opportunistic relink of older unlinked events
	// when a late resolution succeeds.
	BackfillLimit int
}

// WebhookStore bundles the store capabilities the pipeline consumes.
type WebhookStore interface {
	EmailFinder
	EmailUpdater
}

// EventPool bundles the event store capabilities the pipeline consumes.
type EventPool interface {
	EventFinder
	EventWriter
}

func NewWebhookService(emails WebhookStore, events EventPool, cache ExternalIDCache, signingSecret string) *WebhookService {
	return &WebhookService{
		Normalizer:    &Normalizer{SigningSecret: signingSecret},
		Dedup:         NewDedupGate(events),
		Resolver:      NewResolver(emails, cache),
		Reconciler:    &Reconciler{Emails: emails},
		Events:        events,
		BackfillLimit: 50,
	}
}

// ProcessWebhook handles one provider webhook call end to end. Only two
// failures reach the caller as errors: rejection by the normalizer
// (signature or parse) and a failed event insert. Everything after the
// insert is best effort, logged but not surfaced, because the audit record
// is already durable.
func (s *WebhookService) ProcessWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	in, err := s.Normalizer.Normalize(body, signature, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// quick direct lookup feeds the gate's strongest matcher; the full
	// retrying resolution only runs for events that are not duplicates
	hint, err := s.Resolver.Lookup(ctx, in.ProviderEmailID)
	if err != nil {
		log.Printf("⚠️ direct email lookup failed for %s: %v", in.ProviderEmailID, err)
		hint = nil
	}
	hintID := ""
	if hint != nil {
		hintID = hint.ID
	}

	dup, method, err := s.Dedup.FindDuplicate(ctx, in, hintID)
	if err != nil {
		// failing open here risks one duplicate row, failing closed would
		// drop a real event
		log.Printf("⚠️ duplicate check failed, treating event as new: %v", err)
	}
	if dup != nil {
		log.Printf("⏭ duplicate %s event for %s (matched %s by %s)", in.Type, in.ProviderEmailID, dup.ID, method)
		return &WebhookResult{
			EventID:   dup.ID,
			Duplicate: true,
			Linked:    dup.EmailID != nil,
			Message:   "Event already processed (duplicate)",
		}, nil
	}

	email := s.Resolver.Resolve(ctx, in, hint)

	ev := buildEventRecord(in, email)
	if err := s.Events.Insert(ctx, ev); err != nil {
		return nil, appErrors.NewEventWrite(err)
	}

	if email != nil {
		s.backfillUnlinked(ctx, in.ProviderEmailID, email.ID)
		if err := s.Reconciler.Reconcile(ctx, email.ID, in.Type, in.OccurredAt); err != nil {
			log.Printf("⚠️ reconciliation failed for event %s: %v", ev.ID, err)
		}
		return &WebhookResult{EventID: ev.ID, Linked: true, Message: "Event processed successfully"}, nil
	}

	// stored unlinked; one synchronous relink pass before giving up
	if relinked := s.Resolver.Relink(ctx, in.ProviderEmailID); relinked != nil {
		if err := s.Events.LinkEmail(ctx, ev.ID, relinked.ID); err != nil {
			log.Printf("⚠️ failed to link event %s to email %s: %v", ev.ID, relinked.ID, err)
		}
		s.backfillUnlinked(ctx, in.ProviderEmailID, relinked.ID)
		if err := s.Reconciler.Reconcile(ctx, relinked.ID, in.Type, in.OccurredAt); err != nil {
			log.Printf("⚠️ reconciliation failed for event %s: %v", ev.ID, err)
		}
		return &WebhookResult{EventID: ev.ID, Linked: true, Message: "Event processed successfully"}, nil
	}

	log.Printf("⚠️ no email record found for provider id %q, event %s stored unlinked", in.ProviderEmailID, ev.ID)
	return &WebhookResult{EventID: ev.ID, Linked: false, Message: "Event stored; email record not found yet"}, nil
}

// backfillUnlinked opportunistically links older events that were stored
// before the email record existed, once a resolution for the same external
// id finally succeeds.
func (s *WebhookService) backfillUnlinked(ctx context.Context, providerID, emailID string) {
	if providerID == "" {
		return
	}
	pending, err := s.Events.ListUnlinkedByProviderID(ctx, providerID, s.BackfillLimit)
	if err != nil {
		log.Printf("⚠️ failed to list unlinked events for %s: %v", providerID, err)
		return
	}
	for _, ev := range pending {
		if err := s.Events.LinkEmail(ctx, ev.ID, emailID); err != nil {
			log.Printf("⚠️ failed to backfill link for event %s: %v", ev.ID, err)
		}
	}
}

func buildEventRecord(in *InboundEvent, email *model.Email) *model.EmailEvent {
	ev := &model.EmailEvent{
		ID:         uuid.New().String(),
		EventType:  in.Type,
		Raw:        in.Raw,
		OccurredAt: in.OccurredAt,
	}
	if in.Recipient != "" {
		ev.Recipient = &in.Recipient
	}
	if in.ProviderEmailID != "" {
		ev.ProviderEmailID = &in.ProviderEmailID
	}
	if in.ProviderEventID != "" {
		ev.ProviderEventID = &in.ProviderEventID
	}
	if in.ClickedLink != "" {
		ev.ClickedLink = &in.ClickedLink
	}

	// the resolved email record is the source of truth for campaign and
	// user; tags only fill the gaps
	campaignID := in.TagCampaignID
	userID := in.TagUserID
	if email != nil {
		ev.EmailID = &email.ID
		campaignID = email.CampaignID
		if userID == "" {
			userID = email.RecipientID
		}
	} else {
		ev.NeedsLinking = true
	}
	if campaignID != "" {
		if _, err := uuid.Parse(campaignID); err == nil {
			ev.CampaignID = &campaignID
		}
	}
	if userID != "" {
		ev.UserID = &userID
	}
	return ev
}
