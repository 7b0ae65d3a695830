package model

import (
	"time"
)

// Request is a user-authored message to administrators. Status moves from
// pending to approved or denied exactly once.
type Request struct {
	ID         string        `db:"id" json:"id"`
	AccountID  string        `db:"account_id" json:"fromUserId"`
	Message    string        `db:"message" json:"message"`
	Status     RequestStatus `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"timestamp"`
	ResolvedAt *time.Time    `db:"resolved_at" json:"resolvedAt,omitempty"`
}

type CreateRequestParams struct {
	ID        string
	AccountID string
	Message   string
}
