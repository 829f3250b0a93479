// internal/handler/webhook_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	appErrors "github.com/agentzero/phishsim-backend/internal/errors"
	"github.com/agentzero/phishsim-backend/internal/model"
	"github.com/agentzero/phishsim-backend/internal/service"
)

// SignatureHeader carries the provider's HMAC signature of the raw body.
const SignatureHeader = "Resend-Signature"

const maxBodySize = 1 << 20

// WebhookPipeline is the pipeline capability the handler invokes.
type WebhookPipeline interface {
	ProcessWebhook(ctx context.Context, body []byte, signature string) (*service.WebhookResult, error)
}

// RecentEventLister backs the GET debugging view.
type RecentEventLister interface {
	ListRecent(ctx context.Context, limit int) ([]model.EmailEvent, error)
}

// WebhookHandler holds the dependencies for the provider webhook endpoint
type WebhookHandler struct {
	Pipeline WebhookPipeline
	Events   RecentEventLister
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(pipeline WebhookPipeline, events RecentEventLister) *WebhookHandler {
	return &WebhookHandler{Pipeline: pipeline, Events: events}
}

// HandleWebhook ingests one provider webhook call. Duplicates and events
// that cannot be linked yet still get a 200: a non-2xx makes the provider
// retry indefinitely and amplifies the duplicate load. Only a failed event
// insert is a 500, because then nothing was stored and a retry is safe.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read request body"})
		return
	}

	result, err := h.Pipeline.ProcessWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		var writeErr *appErrors.ErrEventWrite
		switch {
		case errors.Is(err, appErrors.ErrInvalidSignature):
			log.Println("❌ Invalid webhook signature")
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid signature"})
		case errors.Is(err, appErrors.ErrMalformedPayload):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Malformed payload"})
		case errors.As(err, &writeErr):
			log.Println("❌ Failed to store webhook event:", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Failed to save event",
				"details": writeErr.Err.Error(),
			})
		default:
			log.Println("❌ Webhook processing error:", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Failed to process webhook",
				"details": err.Error(),
			})
		}
		return
	}

	resp := map[string]any{
		"success": true,
		"eventId": result.EventID,
		"message": result.Message,
	}
	if result.Duplicate {
		resp["duplicate"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// WebhookInfo answers GET requests with endpoint liveness info and the most
// recent events, for webhook configuration debugging.
func (h *WebhookHandler) WebhookInfo(w http.ResponseWriter, r *http.Request) {
	recentEvents, err := h.Events.ListRecent(r.Context(), 10)
	if err != nil {
		log.Println("⚠️ Failed to fetch recent events:", err)
		recentEvents = []model.EmailEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Webhook endpoint is active",
		"method":  "POST",
		"events": []string{
			"email.sent", "email.delivered", "email.opened", "email.clicked",
			"email.bounced", "email.complained", "email.unsubscribed",
		},
		"recentEvents": recentEvents,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Println("⚠️ Failed to encode response:", err)
	}
}
