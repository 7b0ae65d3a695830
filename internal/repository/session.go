package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/aosbot/portal-server-go/internal/model"
)

type SessionRepository interface {
	// FindByTokenHash returns the session matching the hash, or nil when no
	// live session exists. Expired sessions are treated as absent.
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.PortalSession, error)
	Create(ctx context.Context, params model.CreatePortalSessionParams) (*model.PortalSession, error)
	Delete(ctx context.Context, id string) error
	DeleteByAccountID(ctx context.Context, accountID string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
	// DeleteOrphaned removes sessions whose account no longer exists.
	DeleteOrphaned(ctx context.Context) (int64, error)
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db sqlxDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.PortalSession, error) {
	var session model.PortalSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM portal_sessions
		WHERE token_hash = $1 AND expires_at > NOW()
	`, tokenHash)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreatePortalSessionParams) (*model.PortalSession, error) {
	var session model.PortalSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO portal_sessions (id, token_hash, account_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.ID, params.TokenHash, params.AccountID, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM portal_sessions WHERE id = $1`, id)
	return err
}

func (r *sessionRepo) DeleteByAccountID(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM portal_sessions WHERE account_id = $1
	`, accountID)
	return RowsDeleted(result, err)
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM portal_sessions WHERE expires_at <= NOW()
	`)
	return RowsDeleted(result, err)
}

func (r *sessionRepo) DeleteOrphaned(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM portal_sessions
		WHERE account_id NOT IN (SELECT id FROM accounts)
	`)
	return RowsDeleted(result, err)
}
