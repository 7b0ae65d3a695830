package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aosbot/portal-server-go/internal/model"
)

type LogEntryRepository interface {
	Create(ctx context.Context, params model.CreateLogEntryParams) (*model.LogEntry, error)
	// FindByAccountID returns an account's log newest-first.
	FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.LogEntry, error)
	// MarkSuccess transitions a sending entry to success. Terminal entries
	// are never touched; the guard on status enforces that.
	MarkSuccess(ctx context.Context, id string) (*model.LogEntry, error)
	// MarkError transitions a sending entry to error with the captured detail.
	MarkError(ctx context.Context, id, detail string) (*model.LogEntry, error)
	DeleteByAccountID(ctx context.Context, accountID string) (int64, error)
	CountByStatus(ctx context.Context, status model.LogStatus) (int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
	WithTx(tx *sqlx.Tx) LogEntryRepository
}

type logEntryRepo struct {
	db sqlxDB
}

func NewLogEntryRepository(db *sqlx.DB) LogEntryRepository {
	return &logEntryRepo{db: db}
}

func (r *logEntryRepo) WithTx(tx *sqlx.Tx) LogEntryRepository {
	return &logEntryRepo{db: tx}
}

func (r *logEntryRepo) Create(ctx context.Context, params model.CreateLogEntryParams) (*model.LogEntry, error) {
	var entry model.LogEntry
	err := r.db.GetContext(ctx, &entry, `
		INSERT INTO message_logs (id, account_id, message, status)
		VALUES ($1, $2, $3, 'sending')
		RETURNING *
	`, params.ID, params.AccountID, params.Message)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *logEntryRepo) FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.LogEntry, error) {
	var entries []model.LogEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM message_logs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *logEntryRepo) MarkSuccess(ctx context.Context, id string) (*model.LogEntry, error) {
	var entry model.LogEntry
	err := r.db.GetContext(ctx, &entry, `
		UPDATE message_logs SET status = 'success'
		WHERE id = $1 AND status = 'sending'
		RETURNING *
	`, id)
	return HandleNotFound(&entry, err)
}

func (r *logEntryRepo) MarkError(ctx context.Context, id, detail string) (*model.LogEntry, error) {
	var entry model.LogEntry
	err := r.db.GetContext(ctx, &entry, `
		UPDATE message_logs SET status = 'error', error = $2
		WHERE id = $1 AND status = 'sending'
		RETURNING *
	`, id, detail)
	return HandleNotFound(&entry, err)
}

func (r *logEntryRepo) DeleteByAccountID(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM message_logs WHERE account_id = $1`, accountID)
	return RowsDeleted(result, err)
}

func (r *logEntryRepo) CountByStatus(ctx context.Context, status model.LogStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM message_logs WHERE status = $1
	`, status)
	return count, err
}

func (r *logEntryRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM message_logs WHERE created_at >= $1
	`, since)
	return count, err
}
