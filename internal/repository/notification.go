package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/aosbot/portal-server-go/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, params model.CreateNotificationParams) (*model.Notification, error)
	// ListVisible returns the notifications an account can see (its own plus
	// broadcasts), newest-first, with the per-viewer read flag resolved.
	ListVisible(ctx context.Context, accountID string) ([]model.Notification, error)
	// MarkAllRead records a read marker for every notification visible to
	// the account. Markers are per-viewer; other accounts are unaffected.
	MarkAllRead(ctx context.Context, accountID string) (int64, error)
	UnreadCount(ctx context.Context, accountID string) (int, error)
	// DeleteByTarget removes notifications addressed to the account.
	// Broadcast notifications are kept.
	DeleteByTarget(ctx context.Context, accountID string) (int64, error)
	DeleteReadsByAccountID(ctx context.Context, accountID string) (int64, error)
	WithTx(tx *sqlx.Tx) NotificationRepository
}

type notificationRepo struct {
	db sqlxDB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) WithTx(tx *sqlx.Tx) NotificationRepository {
	return &notificationRepo{db: tx}
}

func (r *notificationRepo) Create(ctx context.Context, params model.CreateNotificationParams) (*model.Notification, error) {
	var notification model.Notification
	err := r.db.GetContext(ctx, &notification, `
		INSERT INTO notifications (id, message, target_account_id)
		VALUES ($1, $2, $3)
		RETURNING *, FALSE AS is_read
	`, params.ID, params.Message, params.TargetAccountID)
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepo) ListVisible(ctx context.Context, accountID string) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.SelectContext(ctx, &notifications, `
		SELECT n.*, (nr.notification_id IS NOT NULL) AS is_read
		FROM notifications n
		LEFT JOIN notification_reads nr
			ON nr.notification_id = n.id AND nr.account_id = $1
		WHERE n.target_account_id IS NULL OR n.target_account_id = $1
		ORDER BY n.created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_reads (notification_id, account_id)
		SELECT n.id, $1 FROM notifications n
		WHERE n.target_account_id IS NULL OR n.target_account_id = $1
		ON CONFLICT DO NOTHING
	`, accountID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *notificationRepo) UnreadCount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM notifications n
		LEFT JOIN notification_reads nr
			ON nr.notification_id = n.id AND nr.account_id = $1
		WHERE (n.target_account_id IS NULL OR n.target_account_id = $1)
			AND nr.notification_id IS NULL
	`, accountID)
	return count, err
}

func (r *notificationRepo) DeleteByTarget(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE target_account_id = $1
	`, accountID)
	return RowsDeleted(result, err)
}

func (r *notificationRepo) DeleteReadsByAccountID(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM notification_reads WHERE account_id = $1
	`, accountID)
	return RowsDeleted(result, err)
}
