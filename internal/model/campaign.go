// internal/model/campaign.go
package model

import "time"

type Campaign struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Subject      string     `db:"subject" json:"subject"`
	Status       string     `db:"status" json:"status"`
	BaseTemplate string     `db:"base_template" json:"base_template"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
