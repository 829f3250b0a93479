package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/agentzero/phishsim-backend/internal/model"
	"github.com/agentzero/phishsim-backend/internal/provider"
	"github.com/agentzero/phishsim-backend/internal/repository"
)

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue is an in-process queue with retry, used in single-process
// mode and in tests.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: 3,
	}

	for _, handler := range handlers {
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		log.Printf("Job failed (attempt %d/%d): %+v, error: %v\n", job.RetryCount, job.MaxRetries, job.Payload, err)

		if job.RetryCount > job.MaxRetries {
			log.Printf("Job permanently failed after %d attempts: %+v\n", job.MaxRetries, job.Payload)
			return // No requeue
		}

		// Exponential backoff before retry
		time.Sleep(time.Duration(job.RetryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// SendJob is the wire form of one queued send.
type SendJob struct {
	EmailID string `json:"email_id"`
}

// AMQPPublisher publishes send jobs to a durable RabbitMQ queue consumed by
// cmd/worker. It satisfies the service's Publisher interface.
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPPublisher(url, queueName string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queueName}, nil
}

func (p *AMQPPublisher) Publish(topic string, payload any) error {
	emailID, ok := payload.(string)
	if !ok {
		return fmt.Errorf("expected email id string payload, got %T", payload)
	}
	body, err := json.Marshal(SendJob{EmailID: emailID})
	if err != nil {
		return err
	}
	return p.ch.Publish(
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (p *AMQPPublisher) Close() {
	p.ch.Close()
	p.conn.Close()
}

// EmailSendStore is what the send subscriber needs from the email repo.
type EmailSendStore interface {
	GetByID(ctx context.Context, id string) (*model.Email, error)
	MarkSent(ctx context.Context, id, providerID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

// ExternalIDStore caches the provider id mapping for the webhook resolver.
type ExternalIDStore interface {
	StoreEmailID(ctx context.Context, providerID, emailID string) error
}

// StartSendSubscriber wires an in-process consumer for queued sends: fetch
// the email and recipient, send via the provider, then record the
// provider-assigned id. cache may be nil.
func StartSendSubscriber(q Queue, topic string, emails EmailSendStore, recipients repository.RecipientRepositoryInterface, sender provider.Sender, cache ExternalIDStore) {
	go func() {
		err := q.Subscribe(topic, func(payload any) error {
			emailID, ok := payload.(string)
			if !ok {
				log.Println("⚠️ Invalid payload type, expected email id string")
				return nil
			}

			ctx := context.Background()
			email, err := emails.GetByID(ctx, emailID)
			if err != nil {
				log.Println("⚠️ Failed to fetch email:", err)
				return err
			}
			if email == nil {
				log.Println("⚠️ Email not found for ID:", emailID)
				return nil // no retry
			}

			recipient, err := recipients.GetByID(email.RecipientID)
			if err != nil || recipient == nil {
				log.Println("⚠️ Failed to fetch recipient for email", emailID, ":", err)
				return err
			}

			providerID, err := sender.Send(ctx, provider.OutboundEmail{
				To:         recipient.Email,
				Subject:    email.Subject,
				HTML:       email.Body,
				UserID:     email.RecipientID,
				CampaignID: email.CampaignID,
			})
			if err != nil {
				log.Println("⚠️ Failed to send email:", err)
				_ = emails.MarkFailed(ctx, emailID)
				return err // triggers retry in queue
			}

			sentAt := time.Now().UTC()
			if err := emails.MarkSent(ctx, emailID, providerID, sentAt); err != nil {
				log.Println("⚠️ Failed to record send for email", emailID, ":", err)
				return err
			}
			if cache != nil {
				if err := cache.StoreEmailID(ctx, providerID, emailID); err != nil {
					log.Println("⚠️ Failed to cache provider id", providerID, ":", err)
				}
			}

			log.Println("✅ Email sent:", emailID, "provider id:", providerID)
			return nil
		})

		if err != nil {
			log.Println("⚠️ Failed to start subscriber for", topic, ":", err)
		}
	}()
}
