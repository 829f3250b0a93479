// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrInvalidSignature rejects a webhook whose HMAC signature does not match
// the configured secret. No side effects happen after this.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrMalformedPayload rejects a webhook body that is not parseable JSON.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// ErrEventWrite is a sentinel error wrapping a failed event insert. This is
// the only pipeline failure surfaced as a 5xx: the event was never durably
// stored, so a provider retry is safe and not a duplicate.
type ErrEventWrite struct {
	Err error
}

func (e *ErrEventWrite) Error() string {
	return fmt.Sprintf("failed to store email event: %v", e.Err)
}

func (e *ErrEventWrite) Unwrap() error { return e.Err }

func NewEventWrite(err error) error {
	return &ErrEventWrite{Err: err}
}

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}
