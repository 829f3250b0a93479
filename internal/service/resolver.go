// internal/service/resolver.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/agentzero/phishsim-backend/internal/model"
)

// EmailFinder is the slice of the email store the resolver needs.
type EmailFinder interface {
	GetByID(ctx context.Context, id string) (*model.Email, error)
	GetByProviderID(ctx context.Context, providerID string) (*model.Email, error)
	ListRecentByCampaign(ctx context.Context, campaignID string, limit int) ([]model.EmailWithRecipient, error)
}

// ExternalIDCache maps provider email ids to internal email ids. The send
// worker populates it; the resolver reads it as a fast path only, the store
// stays the source of truth.
type ExternalIDCache interface {
	GetEmailID(ctx context.Context, providerID string) (string, error)
	StoreEmailID(ctx context.Context, providerID, emailID string) error
}

// Resolver links an inbound event to its email record. The provider assigns
// the external id asynchronously after the send, so a webhook can arrive
// before the id is committed; resolution therefore layers a direct lookup,
// one short retry, and a campaign+recipient scan, and finally a bounded
// progressive-backoff relink pass after the event has been stored unlinked.
type Resolver struct {
	Emails EmailFinder
	Cache  ExternalIDCache // optional

	// RetryDelay is the single fixed wait before the second direct lookup.
	RetryDelay time.Duration

	// ScanLimit caps the campaign-scan fallback.
	ScanLimit int

	// RelinkAttempts and RelinkDelay bound the post-store relink pass.
	// Delays are RelinkDelay, 2*RelinkDelay, 4*RelinkDelay, ... so the
	// total stays inside the provider's webhook call timeout.
	RelinkAttempts int
	RelinkDelay    time.Duration
}

func NewResolver(emails EmailFinder, cache ExternalIDCache) *Resolver {
	return &Resolver{
		Emails:         emails,
		Cache:          cache,
		RetryDelay:     500 * time.Millisecond,
		ScanLimit:      10,
		RelinkAttempts: 3,
		RelinkDelay:    500 * time.Millisecond,
	}
}

// Lookup is the non-blocking direct resolution: cache fast path, then one
// store query. Returns nil, nil when nothing carries the id yet.
func (r *Resolver) Lookup(ctx context.Context, providerID string) (*model.Email, error) {
	if providerID == "" {
		return nil, nil
	}
	if r.Cache != nil {
		if id, err := r.Cache.GetEmailID(ctx, providerID); err != nil {
			log.Printf("⚠️ external-id cache lookup failed for %s: %v", providerID, err)
		} else if id != "" {
			if e, err := r.Emails.GetByID(ctx, id); err == nil && e != nil {
				return e, nil
			}
		}
	}
	return r.Emails.GetByProviderID(ctx, providerID)
}

// Resolve runs the full pre-store resolution strategy. hint is a prior
// Lookup result, reused so the common case does not query twice. Lookup
// failures along the way are logged and fall through to the next strategy;
// a nil result means unresolved, never an error.
func (r *Resolver) Resolve(ctx context.Context, in *InboundEvent, hint *model.Email) *model.Email {
	if hint != nil {
		return hint
	}

	// one fixed-delay retry covers the common race where the
	// send-completion write has not committed yet
	if in.ProviderEmailID != "" {
		email := retryLookup(ctx, 2, func(int) time.Duration { return r.RetryDelay },
			func() (*model.Email, error) {
				return r.Lookup(ctx, in.ProviderEmailID)
			})
		if email != nil {
			return email
		}
	}

	if in.TagCampaignID != "" && in.Recipient != "" {
		recent, err := r.Emails.ListRecentByCampaign(ctx, in.TagCampaignID, r.ScanLimit)
		if err != nil {
			log.Printf("⚠️ campaign scan failed for %s: %v", in.TagCampaignID, err)
			return nil
		}
		for i := range recent {
			if recent[i].RecipientEmail == in.Recipient {
				return &recent[i].Email
			}
		}
	}

	return nil
}

// Relink retries the direct lookup with progressive backoff after the event
// has already been stored unlinked. Best effort: nil just means the record
// stays unlinked until a future event for the same external id resolves it.
func (r *Resolver) Relink(ctx context.Context, providerID string) *model.Email {
	if providerID == "" {
		return nil
	}
	return retryLookup(ctx, r.RelinkAttempts,
		func(attempt int) time.Duration {
			return r.RelinkDelay << (attempt - 1)
		},
		func() (*model.Email, error) {
			return r.Emails.GetByProviderID(ctx, providerID)
		})
}

// retryLookup runs lookup up to attempts times, sleeping delay(attempt)
// before each retry. The delay function is pure; no retry state is shared
// across calls. Lookup errors are logged and treated as a miss.
func retryLookup(ctx context.Context, attempts int, delay func(attempt int) time.Duration, lookup func() (*model.Email, error)) *model.Email {
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, delay(attempt-1)); err != nil {
				return nil
			}
		}
		email, err := lookup()
		if err != nil {
			log.Printf("⚠️ email lookup attempt %d/%d failed: %v", attempt, attempts, err)
			continue
		}
		if email != nil {
			return email
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
