package service_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	appErrors "github.com/agentzero/phishsim-backend/internal/errors"
	"github.com/agentzero/phishsim-backend/internal/model"
	"github.com/agentzero/phishsim-backend/internal/service"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestNormalizeVerifiesSignature(t *testing.T) {
	n := &service.Normalizer{SigningSecret: "whsec_test"}
	body := []byte(`{"type":"email.sent","data":{"email_id":"re_1","to":["a@b.com"]}}`)

	if _, err := n.Normalize(body, sign(body, "whsec_test"), time.Now()); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	_, err := n.Normalize(body, sign(body, "wrong_secret"), time.Now())
	if !errors.Is(err, appErrors.ErrInvalidSignature) {
		t.Errorf("expected invalid signature error, got %v", err)
	}

	_, err = n.Normalize(body, "sha256=deadbeef", time.Now())
	if !errors.Is(err, appErrors.ErrInvalidSignature) {
		t.Errorf("expected invalid signature error for garbage digest, got %v", err)
	}
}

func TestNormalizeSkipsVerificationWithoutSecret(t *testing.T) {
	n := &service.Normalizer{}
	body := []byte(`{"type":"email.sent","data":{"email_id":"re_1"}}`)
	if _, err := n.Normalize(body, "sha256=whatever", time.Now()); err != nil {
		t.Errorf("expected signature to be ignored without a secret, got %v", err)
	}
}

func TestNormalizeRejectsMalformedBody(t *testing.T) {
	n := &service.Normalizer{}
	_, err := n.Normalize([]byte(`{"type":`), "", time.Now())
	if !errors.Is(err, appErrors.ErrMalformedPayload) {
		t.Errorf("expected malformed payload error, got %v", err)
	}
}

func TestNormalizeEventTypeMapping(t *testing.T) {
	n := &service.Normalizer{}
	cases := []struct {
		provider string
		want     model.EventType
		known    bool
	}{
		{"email.sent", model.EventSent, true},
		{"email.delivered", model.EventDelivered, true},
		{"email.opened", model.EventOpened, true},
		{"email.clicked", model.EventClicked, true},
		{"email.bounced", model.EventBounced, true},
		{"email.complained", model.EventComplained, true},
		{"email.unsubscribed", model.EventUnsubscribed, true},
		{"email.delivery_delayed", model.EventType("delivery_delayed"), false},
	}
	for _, tc := range cases {
		body := []byte(`{"type":"` + tc.provider + `","data":{"email_id":"re_1"}}`)
		in, err := n.Normalize(body, "", time.Now())
		if err != nil {
			t.Fatalf("%s: %v", tc.provider, err)
		}
		if in.Type != tc.want {
			t.Errorf("%s: expected type %s, got %s", tc.provider, tc.want, in.Type)
		}
		if in.Type.Known() != tc.known {
			t.Errorf("%s: expected known=%v", tc.provider, tc.known)
		}
	}
}

func TestNormalizeRecipientForms(t *testing.T) {
	n := &service.Normalizer{}

	in, err := n.Normalize([]byte(`{"type":"email.sent","data":{"to":["a@b.com","c@d.com"]}}`), "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if in.Recipient != "a@b.com" {
		t.Errorf("array form: expected first address, got %q", in.Recipient)
	}

	in, err = n.Normalize([]byte(`{"type":"email.sent","data":{"to":"solo@b.com"}}`), "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if in.Recipient != "solo@b.com" {
		t.Errorf("string form: got %q", in.Recipient)
	}

	in, err = n.Normalize([]byte(`{"type":"email.bounced","data":{"email":"plain@b.com"}}`), "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if in.Recipient != "plain@b.com" {
		t.Errorf("email field form: got %q", in.Recipient)
	}
}

func TestNormalizeOccurredAt(t *testing.T) {
	n := &service.Normalizer{}
	receivedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	in, err := n.Normalize([]byte(`{"type":"email.sent","created_at":"2026-08-01T11:58:30Z","data":{}}`), "", receivedAt)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 8, 1, 11, 58, 30, 0, time.UTC)
	if !in.OccurredAt.Equal(want) {
		t.Errorf("expected payload timestamp %v, got %v", want, in.OccurredAt)
	}

	// missing timestamp falls back to receipt time
	in, err = n.Normalize([]byte(`{"type":"email.sent","data":{}}`), "", receivedAt)
	if err != nil {
		t.Fatal(err)
	}
	if !in.OccurredAt.Equal(receivedAt) {
		t.Errorf("expected receipt-time fallback, got %v", in.OccurredAt)
	}

	// unparseable timestamp also falls back
	in, err = n.Normalize([]byte(`{"type":"email.sent","created_at":"yesterday","data":{}}`), "", receivedAt)
	if err != nil {
		t.Fatal(err)
	}
	if !in.OccurredAt.Equal(receivedAt) {
		t.Errorf("expected receipt-time fallback for bad timestamp, got %v", in.OccurredAt)
	}
}

func TestNormalizeTagsAndLink(t *testing.T) {
	n := &service.Normalizer{}
	body := []byte(`{
		"type": "email.clicked",
		"data": {
			"email_id": "re_1",
			"to": ["a@b.com"],
			"link": "https://landing.example.com/reset",
			"tags": [
				{"name": "userId", "value": "u-1"},
				{"name": "campaignId", "value": "c-1"},
				{"name": "other", "value": "ignored"}
			]
		}
	}`)
	in, err := n.Normalize(body, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if in.TagUserID != "u-1" {
		t.Errorf("expected userId tag, got %q", in.TagUserID)
	}
	if in.TagCampaignID != "c-1" {
		t.Errorf("expected campaignId tag, got %q", in.TagCampaignID)
	}
	if in.ClickedLink != "https://landing.example.com/reset" {
		t.Errorf("expected clicked link, got %q", in.ClickedLink)
	}
	if string(in.Raw) != string(body) {
		t.Errorf("expected raw body preserved")
	}
}
