// internal/model/recipient.go
package model

import "time"

type Recipient struct {
	ID         string    `db:"id" json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	Email      string    `db:"email" json:"email"`
	Name       string    `db:"name" json:"name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
