package model

import (
	"time"
)

// Account is the authoritative user record. The id is externally assigned and
// doubles as the login credential. LastCountReset holds a UTC calendar date in
// yyyy-mm-dd form; the message count is only meaningful for that date.
type Account struct {
	ID                string    `db:"id" json:"id"`
	Role              Role      `db:"role" json:"role"`
	IsSuspended       bool      `db:"is_suspended" json:"isSuspended"`
	DailyLimit        int       `db:"daily_limit" json:"dailyLimit"`
	MessageCount      int       `db:"message_count" json:"messageCount"`
	LastCountReset    string    `db:"last_count_reset" json:"lastCountReset"`
	AocBalance        int       `db:"aoc_balance" json:"aocBalance"`
	SelectedWebhookID *string   `db:"selected_webhook_id" json:"selectedWebhookId,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type CreateAccountParams struct {
	ID             string
	DailyLimit     int
	AocBalance     int
	LastCountReset string
}

// UpdateAccountParams carries a partial update; nil fields are left unchanged.
type UpdateAccountParams struct {
	Role           *Role
	IsSuspended    *bool
	DailyLimit     *int
	MessageCount   *int
	LastCountReset *string
	AocBalance     *int
}

// Empty reports whether no field of the partial update is set.
func (p UpdateAccountParams) Empty() bool {
	return p.Role == nil && p.IsSuspended == nil && p.DailyLimit == nil &&
		p.MessageCount == nil && p.LastCountReset == nil && p.AocBalance == nil
}
