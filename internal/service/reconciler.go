// internal/service/reconciler.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/agentzero/phishsim-backend/internal/model"
)

// EmailUpdater is the slice of the email store the reconciler needs.
type EmailUpdater interface {
	GetByID(ctx context.Context, id string) (*model.Email, error)
	ApplyStatusUpdate(ctx context.Context, id string, upd model.StatusUpdate) error
}

// Reconciler applies an event's effect to the owning email record. Status
// only moves forward and each timestamp is written at most once, so
// replaying the same event is a no-op. The store offers no transactional
// isolation, so the current row is read immediately before the write to
// keep the lost-update window small; it cannot be closed entirely here.
type Reconciler struct {
	Emails EmailUpdater
}

// PlanStatusUpdate computes the partial update an event implies against the
// email's current state. The second return is false when nothing changes.
//
// Rules: sent/delivered/clicked advance the status when it is further back
// and stamp their timestamp if still unset; opened only stamps opened_at
// and never touches status; bounced, complained and unsubscribed all land
// on the terminal bounced status. Timestamps use the event's occurred-at,
// so the first report of a stage wins even when the provider re-sends it.
func PlanStatusUpdate(e *model.Email, t model.EventType, occurredAt time.Time) (model.StatusUpdate, bool) {
	var upd model.StatusUpdate
	at := occurredAt

	switch t {
	case model.EventSent:
		if e.SentAt == nil {
			upd.SentAt = &at
		}
		if e.Status.AdvancesTo(model.StatusSent) {
			s := model.StatusSent
			upd.Status = &s
		}
	case model.EventDelivered:
		if e.DeliveredAt == nil {
			upd.DeliveredAt = &at
		}
		if e.Status.AdvancesTo(model.StatusDelivered) {
			s := model.StatusDelivered
			upd.Status = &s
		}
	case model.EventOpened:
		if e.OpenedAt == nil {
			upd.OpenedAt = &at
		}
	case model.EventClicked:
		if e.ClickedAt == nil {
			upd.ClickedAt = &at
		}
		if e.Status.AdvancesTo(model.StatusClicked) {
			s := model.StatusClicked
			upd.Status = &s
		}
	case model.EventBounced, model.EventComplained, model.EventUnsubscribed:
		if e.Status != model.StatusBounced {
			s := model.StatusBounced
			upd.Status = &s
		}
	default:
		// unknown passthrough types are stored for audit but carry no
		// status semantics
		return upd, false
	}

	return upd, !upd.Empty()
}

// Reconcile reads the email's current state and applies the event's effect.
// A write failure here does not fail the webhook call: the event row is
// already durable and a later event of the same type re-attempts the same
// update.
func (rc *Reconciler) Reconcile(ctx context.Context, emailID string, t model.EventType, occurredAt time.Time) error {
	email, err := rc.Emails.GetByID(ctx, emailID)
	if err != nil {
		return fmt.Errorf("failed to read email %s: %w", emailID, err)
	}
	if email == nil {
		return fmt.Errorf("email %s not found", emailID)
	}

	upd, ok := PlanStatusUpdate(email, t, occurredAt)
	if !ok {
		return nil
	}

	if err := rc.Emails.ApplyStatusUpdate(ctx, emailID, upd); err != nil {
		return fmt.Errorf("failed to update email %s for %s event: %w", emailID, t, err)
	}
	return nil
}
