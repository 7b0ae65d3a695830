package model

import (
	"time"
)

// Notification is an admin-authored message. A nil target means broadcast.
// IsRead is a per-viewer projection computed from read markers, not a column
// on the notification itself, so one viewer acknowledging a broadcast never
// affects another viewer.
type Notification struct {
	ID              string    `db:"id" json:"id"`
	Message         string    `db:"message" json:"message"`
	TargetAccountID *string   `db:"target_account_id" json:"targetUserId,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"timestamp"`
	IsRead          bool      `db:"is_read" json:"isRead"`
}

type CreateNotificationParams struct {
	ID              string
	Message         string
	TargetAccountID *string
}
