package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appErrors "github.com/agentzero/phishsim-backend/internal/errors"
	"github.com/agentzero/phishsim-backend/internal/handler"
	"github.com/agentzero/phishsim-backend/internal/model"
	"github.com/agentzero/phishsim-backend/internal/service"
)

type stubPipeline struct {
	result    *service.WebhookResult
	err       error
	gotBody   []byte
	gotHeader string
}

func (s *stubPipeline) ProcessWebhook(ctx context.Context, body []byte, signature string) (*service.WebhookResult, error) {
	s.gotBody = body
	s.gotHeader = signature
	return s.result, s.err
}

type stubEventLister struct {
	events []model.EmailEvent
	err    error
}

func (s *stubEventLister) ListRecent(ctx context.Context, limit int) ([]model.EmailEvent, error) {
	return s.events, s.err
}

func postWebhook(h *handler.WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/resend", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(handler.SignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return resp
}

func TestHandleWebhookSuccess(t *testing.T) {
	pipeline := &stubPipeline{result: &service.WebhookResult{
		EventID: "ev-1",
		Linked:  true,
		Message: "Event processed successfully",
	}}
	h := handler.NewWebhookHandler(pipeline, &stubEventLister{})

	rr := postWebhook(h, `{"type":"email.sent"}`, "sha256=abc")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decode(t, rr)
	if resp["success"] != true {
		t.Errorf("expected success true, got %v", resp["success"])
	}
	if resp["eventId"] != "ev-1" {
		t.Errorf("expected eventId ev-1, got %v", resp["eventId"])
	}
	if _, ok := resp["duplicate"]; ok {
		t.Errorf("duplicate flag must be absent for new events")
	}
	if pipeline.gotHeader != "sha256=abc" {
		t.Errorf("signature header not forwarded, got %q", pipeline.gotHeader)
	}
	if string(pipeline.gotBody) != `{"type":"email.sent"}` {
		t.Errorf("raw body not forwarded, got %q", pipeline.gotBody)
	}
}

func TestHandleWebhookDuplicate(t *testing.T) {
	pipeline := &stubPipeline{result: &service.WebhookResult{
		EventID:   "ev-1",
		Duplicate: true,
		Linked:    true,
		Message:   "Event already processed (duplicate)",
	}}
	h := handler.NewWebhookHandler(pipeline, &stubEventLister{})

	rr := postWebhook(h, `{}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("duplicates must still get 200, got %d", rr.Code)
	}
	resp := decode(t, rr)
	if resp["duplicate"] != true {
		t.Errorf("expected duplicate flag, got %v", resp)
	}
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	pipeline := &stubPipeline{err: appErrors.ErrInvalidSignature}
	h := handler.NewWebhookHandler(pipeline, &stubEventLister{})

	rr := postWebhook(h, `{}`, "sha256=bad")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	resp := decode(t, rr)
	if resp["error"] != "Invalid signature" {
		t.Errorf("unexpected error body: %v", resp)
	}
}

func TestHandleWebhookMalformedPayload(t *testing.T) {
	pipeline := &stubPipeline{err: appErrors.ErrMalformedPayload}
	h := handler.NewWebhookHandler(pipeline, &stubEventLister{})

	rr := postWebhook(h, `not json`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	resp := decode(t, rr)
	if resp["error"] != "Malformed payload" {
		t.Errorf("unexpected error body: %v", resp)
	}
}

func TestHandleWebhookEventWriteFailure(t *testing.T) {
	pipeline := &stubPipeline{err: appErrors.NewEventWrite(fmt.Errorf("connection refused"))}
	h := handler.NewWebhookHandler(pipeline, &stubEventLister{})

	rr := postWebhook(h, `{}`, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	resp := decode(t, rr)
	if resp["error"] != "Failed to save event" {
		t.Errorf("unexpected error body: %v", resp)
	}
	if resp["details"] != "connection refused" {
		t.Errorf("expected underlying cause in details, got %v", resp["details"])
	}
}

func TestWebhookInfo(t *testing.T) {
	events := &stubEventLister{events: []model.EmailEvent{
		{ID: "ev-1", EventType: model.EventDelivered, OccurredAt: time.Now()},
	}}
	h := handler.NewWebhookHandler(&stubPipeline{}, events)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/resend", nil)
	rr := httptest.NewRecorder()
	h.WebhookInfo(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decode(t, rr)
	if resp["message"] != "Webhook endpoint is active" {
		t.Errorf("unexpected message: %v", resp["message"])
	}
	recent, ok := resp["recentEvents"].([]any)
	if !ok || len(recent) != 1 {
		t.Errorf("expected one recent event, got %v", resp["recentEvents"])
	}
}

func TestWebhookInfoStoreFailure(t *testing.T) {
	events := &stubEventLister{err: fmt.Errorf("store down")}
	h := handler.NewWebhookHandler(&stubPipeline{}, events)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/resend", nil)
	rr := httptest.NewRecorder()
	h.WebhookInfo(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("info endpoint must stay up without the store, got %d", rr.Code)
	}
	resp := decode(t, rr)
	recent, ok := resp["recentEvents"].([]any)
	if !ok || len(recent) != 0 {
		t.Errorf("expected empty recent events, got %v", resp["recentEvents"])
	}
}
