// internal/provider/client.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OutboundEmail is one email handed to the delivery provider. UserID and
// CampaignID ride along as tracking tags so webhooks can be correlated even
// before the provider-assigned id is stored.
type OutboundEmail struct {
	To         string
	Subject    string
	HTML       string
	From       string
	UserID     string
	CampaignID string
}

// Sender sends one email and returns the provider-assigned message id. The
// id is the join key for all future webhook correlation.
type Sender interface {
	Send(ctx context.Context, email OutboundEmail) (string, error)
}

type tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client is a thin HTTP wrapper around the delivery provider's send API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	from    string
}

func NewClient(baseURL, apiKey, from string) *Client {
	return &Client{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
	}
}

var _ Sender = (*Client)(nil)

func (c *Client) Send(ctx context.Context, email OutboundEmail) (string, error) {
	from := email.From
	if from == "" {
		from = c.from
	}

	tags := []tag{}
	if email.UserID != "" {
		tags = append(tags, tag{Name: "userId", Value: email.UserID})
	}
	if email.CampaignID != "" {
		tags = append(tags, tag{Name: "campaignId", Value: email.CampaignID})
	}

	payload := map[string]any{
		"from":    from,
		"to":      []string{email.To},
		"subject": email.Subject,
		"html":    email.HTML,
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}
	bodyBytes, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("received status %d from provider", resp.StatusCode)
	}

	var respData struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to parse provider response: %w", err)
	}
	if respData.ID == "" {
		return "", fmt.Errorf("no message id in provider response")
	}
	return respData.ID, nil
}
