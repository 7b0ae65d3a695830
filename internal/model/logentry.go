package model

import (
	"time"
)

// LogEntry records one send attempt. Entries are append-only: the single
// permitted mutation is the sending -> success|error transition.
type LogEntry struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"accountId"`
	Message   string    `db:"message" json:"message"`
	Status    LogStatus `db:"status" json:"status"`
	Error     *string   `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateLogEntryParams struct {
	ID        string
	AccountID string
	Message   string
}
