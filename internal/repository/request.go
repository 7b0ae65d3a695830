package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aosbot/portal-server-go/internal/model"
)

type RequestRepository interface {
	FindByID(ctx context.Context, id string) (*model.Request, error)
	FindByAccountID(ctx context.Context, accountID string) ([]model.Request, error)
	FindAll(ctx context.Context) ([]model.Request, error)
	Create(ctx context.Context, params model.CreateRequestParams) (*model.Request, error)
	// Resolve transitions a pending request to approved or denied. Returns
	// nil when the request is missing or already terminal.
	Resolve(ctx context.Context, id string, status model.RequestStatus) (*model.Request, error)
	DeleteByAccountID(ctx context.Context, accountID string) (int64, error)
	CountByStatus(ctx context.Context, status model.RequestStatus) (int, error)
	WithTx(tx *sqlx.Tx) RequestRepository
}

type requestRepo struct {
	db sqlxDB
}

func NewRequestRepository(db *sqlx.DB) RequestRepository {
	return &requestRepo{db: db}
}

func (r *requestRepo) WithTx(tx *sqlx.Tx) RequestRepository {
	return &requestRepo{db: tx}
}

func (r *requestRepo) FindByID(ctx context.Context, id string) (*model.Request, error) {
	var request model.Request
	err := r.db.GetContext(ctx, &request, `SELECT * FROM requests WHERE id = $1`, id)
	return HandleNotFound(&request, err)
}

func (r *requestRepo) FindByAccountID(ctx context.Context, accountID string) ([]model.Request, error) {
	var requests []model.Request
	err := r.db.SelectContext(ctx, &requests, `
		SELECT * FROM requests
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepo) FindAll(ctx context.Context) ([]model.Request, error) {
	var requests []model.Request
	err := r.db.SelectContext(ctx, &requests, `
		SELECT * FROM requests
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepo) Create(ctx context.Context, params model.CreateRequestParams) (*model.Request, error) {
	var request model.Request
	err := r.db.GetContext(ctx, &request, `
		INSERT INTO requests (id, account_id, message, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING *
	`, params.ID, params.AccountID, params.Message)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepo) Resolve(ctx context.Context, id string, status model.RequestStatus) (*model.Request, error) {
	var request model.Request
	err := r.db.GetContext(ctx, &request, `
		UPDATE requests SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, status, time.Now())
	return HandleNotFound(&request, err)
}

func (r *requestRepo) DeleteByAccountID(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM requests WHERE account_id = $1`, accountID)
	return RowsDeleted(result, err)
}

func (r *requestRepo) CountByStatus(ctx context.Context, status model.RequestStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM requests WHERE status = $1
	`, status)
	return count, err
}
