package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aosbot/portal-server-go/internal/model"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	// FindAll returns every account ordered role-descending, then id-ascending.
	FindAll(ctx context.Context) ([]model.Account, error)
	Create(ctx context.Context, params model.CreateAccountParams) (*model.Account, error)
	Update(ctx context.Context, id string, params model.UpdateAccountParams) (*model.Account, error)
	// ResetDailyCount zeroes the message count and stamps the reset date.
	ResetDailyCount(ctx context.Context, id, today string) (*model.Account, error)
	// IncrementMessageCount adds exactly one counted send and returns the
	// fresh row, or nil when the account is gone.
	IncrementMessageCount(ctx context.Context, id string) (*model.Account, error)
	// Purchase atomically debits the balance and raises the daily limit.
	// Returns nil when the balance does not cover the cost.
	Purchase(ctx context.Context, id string, cost, grant int) (*model.Account, error)
	// AdjustBalance applies a signed delta, clamped at a floor of zero.
	AdjustBalance(ctx context.Context, id string, delta int) (*model.Account, error)
	SetSelectedWebhook(ctx context.Context, id string, webhookID *string) error
	Delete(ctx context.Context, id string) (int64, error)
	Count(ctx context.Context) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AccountRepository
}

type accountRepo struct {
	db sqlxDB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) WithTx(tx *sqlx.Tx) AccountRepository {
	return &accountRepo{db: tx}
}

func (r *accountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts WHERE id = $1
	`, id)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindAll(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM accounts
		ORDER BY role DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepo) Create(ctx context.Context, params model.CreateAccountParams) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO accounts (id, role, is_suspended, daily_limit, message_count, last_count_reset, aoc_balance)
		VALUES ($1, 'user', FALSE, $2, 0, $3, $4)
		RETURNING *
	`, params.ID, params.DailyLimit, params.LastCountReset, params.AocBalance)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepo) Update(ctx context.Context, id string, params model.UpdateAccountParams) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		UPDATE accounts SET
			role = COALESCE($2, role),
			is_suspended = COALESCE($3, is_suspended),
			daily_limit = COALESCE($4, daily_limit),
			message_count = COALESCE($5, message_count),
			last_count_reset = COALESCE($6, last_count_reset),
			aoc_balance = COALESCE($7, aoc_balance),
			updated_at = $8
		WHERE id = $1
		RETURNING *
	`, id, params.Role, params.IsSuspended, params.DailyLimit,
		params.MessageCount, params.LastCountReset, params.AocBalance, time.Now())
	return HandleNotFound(&account, err)
}

func (r *accountRepo) ResetDailyCount(ctx context.Context, id, today string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		UPDATE accounts SET
			message_count = 0,
			last_count_reset = $2,
			updated_at = $3
		WHERE id = $1
		RETURNING *
	`, id, today, time.Now())
	return HandleNotFound(&account, err)
}

func (r *accountRepo) IncrementMessageCount(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		UPDATE accounts SET
			message_count = message_count + 1,
			updated_at = $2
		WHERE id = $1
		RETURNING *
	`, id, time.Now())
	return HandleNotFound(&account, err)
}

func (r *accountRepo) Purchase(ctx context.Context, id string, cost, grant int) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		UPDATE accounts SET
			aoc_balance = aoc_balance - $2,
			daily_limit = daily_limit + $3,
			updated_at = $4
		WHERE id = $1 AND aoc_balance >= $2
		RETURNING *
	`, id, cost, grant, time.Now())
	return HandleNotFound(&account, err)
}

func (r *accountRepo) AdjustBalance(ctx context.Context, id string, delta int) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		UPDATE accounts SET
			aoc_balance = GREATEST(0, aoc_balance + $2),
			updated_at = $3
		WHERE id = $1
		RETURNING *
	`, id, delta, time.Now())
	return HandleNotFound(&account, err)
}

func (r *accountRepo) SetSelectedWebhook(ctx context.Context, id string, webhookID *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			selected_webhook_id = $2,
			updated_at = $3
		WHERE id = $1
	`, id, webhookID, time.Now())
	return err
}

func (r *accountRepo) Delete(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return RowsDeleted(result, err)
}

func (r *accountRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM accounts`)
	return count, err
}
