package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/aosbot/portal-server-go/internal/model"
)

type WebhookRepository interface {
	FindByID(ctx context.Context, id string) (*model.Webhook, error)
	// FindByAccountID returns an account's webhooks in insertion order.
	FindByAccountID(ctx context.Context, accountID string) ([]model.Webhook, error)
	Create(ctx context.Context, params model.CreateWebhookParams) (*model.Webhook, error)
	Delete(ctx context.Context, id string) (int64, error)
	DeleteByAccountID(ctx context.Context, accountID string) (int64, error)
	WithTx(tx *sqlx.Tx) WebhookRepository
}

type webhookRepo struct {
	db sqlxDB
}

func NewWebhookRepository(db *sqlx.DB) WebhookRepository {
	return &webhookRepo{db: db}
}

func (r *webhookRepo) WithTx(tx *sqlx.Tx) WebhookRepository {
	return &webhookRepo{db: tx}
}

func (r *webhookRepo) FindByID(ctx context.Context, id string) (*model.Webhook, error) {
	var webhook model.Webhook
	err := r.db.GetContext(ctx, &webhook, `SELECT * FROM webhooks WHERE id = $1`, id)
	return HandleNotFound(&webhook, err)
}

func (r *webhookRepo) FindByAccountID(ctx context.Context, accountID string) ([]model.Webhook, error) {
	var webhooks []model.Webhook
	err := r.db.SelectContext(ctx, &webhooks, `
		SELECT * FROM webhooks
		WHERE account_id = $1
		ORDER BY position ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *webhookRepo) Create(ctx context.Context, params model.CreateWebhookParams) (*model.Webhook, error) {
	var webhook model.Webhook
	err := r.db.GetContext(ctx, &webhook, `
		INSERT INTO webhooks (id, account_id, name, url, position)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM webhooks WHERE account_id = $2))
		RETURNING *
	`, params.ID, params.AccountID, params.Name, params.URL)
	if err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (r *webhookRepo) Delete(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	return RowsDeleted(result, err)
}

func (r *webhookRepo) DeleteByAccountID(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE account_id = $1`, accountID)
	return RowsDeleted(result, err)
}
