package model

import (
	"time"
)

// Webhook is a named relay destination owned by exactly one account. Position
// preserves insertion order so selection fallback is deterministic.
type Webhook struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"accountId"`
	Name      string    `db:"name" json:"name"`
	URL       string    `db:"url" json:"url"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateWebhookParams struct {
	ID        string
	AccountID string
	Name      string
	URL       string
}
