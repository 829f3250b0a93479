// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

var DB *sql.DB

func Init() {
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, pass, host, port, name,
	)

	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}

	if err = DB.Ping(); err != nil {
		log.Fatalf("failed to ping DB: %v", err)
	}

	if err = EnsureSchema(DB); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	log.Println("✅ Connected to database")
}

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS campaigns (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		base_template TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS recipients (
		id UUID PRIMARY KEY,
		campaign_id UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS emails (
		id UUID PRIMARY KEY,
		campaign_id UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		recipient_id UUID NOT NULL REFERENCES recipients(id) ON DELETE CASCADE,
		subject TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		provider_email_id TEXT,
		sent_at TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		opened_at TIMESTAMPTZ,
		clicked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_emails_provider_email_id ON emails(provider_email_id);
	CREATE INDEX IF NOT EXISTS idx_emails_campaign_id ON emails(campaign_id);

	CREATE TABLE IF NOT EXISTS email_events (
		id UUID PRIMARY KEY,
		email_id UUID REFERENCES emails(id) ON DELETE CASCADE,
		event_type TEXT NOT NULL,
		campaign_id UUID,
		recipient TEXT,
		user_id TEXT,
		provider_email_id TEXT,
		provider_event_id TEXT,
		clicked_link TEXT,
		needs_linking BOOLEAN NOT NULL DEFAULT FALSE,
		raw JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_email_events_type_created ON email_events(event_type, created_at);
	CREATE INDEX IF NOT EXISTS idx_email_events_email_id ON email_events(email_id);
	CREATE INDEX IF NOT EXISTS idx_email_events_provider_email_id ON email_events(provider_email_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure tables exist: %w", err)
	}
	return nil
}
