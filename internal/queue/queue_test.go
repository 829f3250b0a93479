package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentzero/phishsim-backend/internal/model"
	"github.com/agentzero/phishsim-backend/internal/provider"
	"github.com/agentzero/phishsim-backend/internal/queue"
)

// MockEmailStore stores emails in memory
type MockEmailStore struct {
	mu     sync.Mutex
	emails map[string]*model.Email
	done   *sync.WaitGroup
}

func (m *MockEmailStore) GetByID(ctx context.Context, id string) (*model.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emails[id], nil
}

func (m *MockEmailStore) MarkSent(ctx context.Context, id, providerID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.emails[id]
	e.Status = model.StatusSent
	e.ProviderEmailID = &providerID
	e.SentAt = &sentAt
	m.done.Done()
	return nil
}

func (m *MockEmailStore) MarkFailed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[id].Status = model.StatusBounced
	return nil
}

// MockRecipientRepo returns a fixed recipient
type MockRecipientRepo struct {
	recipient *model.Recipient
}

func (m *MockRecipientRepo) GetByID(id string) (*model.Recipient, error) {
	return m.recipient, nil
}

func (m *MockRecipientRepo) ListByCampaign(campaignID string) ([]model.Recipient, error) {
	return []model.Recipient{*m.recipient}, nil
}

func (m *MockRecipientRepo) Create(r *model.Recipient) error { return nil }

// MockSender always succeeds with a fixed provider id
type MockSender struct {
	mu   sync.Mutex
	sent []provider.OutboundEmail
}

func (m *MockSender) Send(ctx context.Context, email provider.OutboundEmail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return "re_mock", nil
}

type MockIDCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *MockIDCache) StoreEmailID(ctx context.Context, providerID, emailID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[providerID] = emailID
	return nil
}

func TestSendSubscriber(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	emails := &MockEmailStore{
		emails: map[string]*model.Email{
			"em-1": {ID: "em-1", CampaignID: "c-1", RecipientID: "r-1", Subject: "hi", Body: "<p>hi</p>", Status: model.StatusPending},
		},
		done: &wg,
	}
	recipients := &MockRecipientRepo{recipient: &model.Recipient{ID: "r-1", CampaignID: "c-1", Email: "alice@corp.com", Name: "Alice"}}
	sender := &MockSender{}
	cache := &MockIDCache{m: map[string]string{}}

	q := queue.NewInMemoryQueue()
	queue.StartSendSubscriber(q, "email_sends", emails, recipients, sender, cache)

	// subscriber registration happens in a goroutine
	deadline := time.Now().Add(time.Second)
	for {
		if err := q.Publish("email_sends", "em-1"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}

	// wait until the job is processed
	wg.Wait()

	email, _ := emails.GetByID(context.Background(), "em-1")
	if email.Status != model.StatusSent {
		t.Errorf("expected sent, got %s", email.Status)
	}
	if email.ProviderEmailID == nil || *email.ProviderEmailID != "re_mock" {
		t.Errorf("expected provider id recorded, got %v", email.ProviderEmailID)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}
	if sender.sent[0].To != "alice@corp.com" {
		t.Errorf("expected recipient address, got %s", sender.sent[0].To)
	}
	if sender.sent[0].CampaignID != "c-1" {
		t.Errorf("expected campaign tag, got %s", sender.sent[0].CampaignID)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.m["re_mock"] != "em-1" {
		t.Errorf("expected provider id cached for the webhook resolver, got %v", cache.m)
	}
}

func TestSendSubscriberSkipsMissingEmail(t *testing.T) {
	var wg sync.WaitGroup
	emails := &MockEmailStore{emails: map[string]*model.Email{}, done: &wg}
	sender := &MockSender{}

	q := queue.NewInMemoryQueue()
	queue.StartSendSubscriber(q, "email_sends", emails, &MockRecipientRepo{}, sender, nil)

	deadline := time.Now().Add(time.Second)
	for {
		if err := q.Publish("email_sends", "em-missing"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}

	// missing emails are dropped without retries; give the handler a moment
	time.Sleep(20 * time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 0 {
		t.Errorf("nothing should be sent for a missing email, got %d", len(sender.sent))
	}
}

func TestInMemoryQueueRequiresSubscriber(t *testing.T) {
	q := queue.NewInMemoryQueue()
	if err := q.Publish("nobody_home", "x"); err == nil {
		t.Errorf("expected error publishing without subscribers")
	}
}

