package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/audit"
	"github.com/aosbot/portal-server-go/internal/database"
	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/repository"
)

// WorkflowPublisher pushes request and notification events to clients.
type WorkflowPublisher interface {
	PublishNotification(ctx context.Context, targetAccountID *string, payload any) error
	PublishRequestUpdated(ctx context.Context, payload any) error
}

// WorkflowService runs the request/notification flow: users file requests,
// admins resolve them, and each resolution notifies the author exactly once.
type WorkflowService struct {
	db               *database.DB
	requestRepo      repository.RequestRepository
	notificationRepo repository.NotificationRepository
	accountRepo      repository.AccountRepository
	broker           WorkflowPublisher
}

func NewWorkflowService(
	db *database.DB,
	requestRepo repository.RequestRepository,
	notificationRepo repository.NotificationRepository,
	accountRepo repository.AccountRepository,
	broker WorkflowPublisher,
) *WorkflowService {
	return &WorkflowService{
		db:               db,
		requestRepo:      requestRepo,
		notificationRepo: notificationRepo,
		accountRepo:      accountRepo,
		broker:           broker,
	}
}

// CreateRequest files a request on behalf of the account. Suspension does
// not block this; asking for reinstatement is the main reason suspended
// accounts come here.
func (s *WorkflowService) CreateRequest(ctx context.Context, accountID, message string) (*model.Request, error) {
	if message == "" {
		return nil, errors.MissingRequired("message")
	}

	request, err := s.requestRepo.Create(ctx, model.CreateRequestParams{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Message:   message,
	})
	if err != nil {
		return nil, errors.Database(err)
	}

	log.Info().
		Str("accountId", accountID).
		Str("requestId", request.ID).
		Msg("request created")

	if pubErr := s.broker.PublishRequestUpdated(ctx, request); pubErr != nil {
		log.Warn().Err(pubErr).Str("requestId", request.ID).Msg("failed to publish request update")
	}

	return request, nil
}

func (s *WorkflowService) ListRequests(ctx context.Context, accountID string) ([]model.Request, error) {
	requests, err := s.requestRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, errors.Database(err)
	}
	return requests, nil
}

func (s *WorkflowService) ListAllRequests(ctx context.Context) ([]model.Request, error) {
	requests, err := s.requestRepo.FindAll(ctx)
	if err != nil {
		return nil, errors.Database(err)
	}
	return requests, nil
}

func (s *WorkflowService) PendingRequestCount(ctx context.Context) (int, error) {
	count, err := s.requestRepo.CountByStatus(ctx, model.RequestStatusPending)
	if err != nil {
		return 0, errors.Database(err)
	}
	return count, nil
}

// ResolveRequest moves a pending request to approved or denied and drops a
// notification on the author. The status guard in the repository makes sure
// a request can only be resolved once, even under concurrent admins.
func (s *WorkflowService) ResolveRequest(ctx context.Context, actorID, requestID string, status model.RequestStatus) (*model.Request, error) {
	if !status.Terminal() {
		return nil, errors.InvalidInput("status", "must be approved or denied")
	}

	var resolved *model.Request
	var notification *model.Notification

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		requestRepo := s.requestRepo.WithTx(tx)

		request, err := requestRepo.Resolve(ctx, requestID, status)
		if err != nil {
			return errors.Database(err)
		}
		if request == nil {
			existing, err := requestRepo.FindByID(ctx, requestID)
			if err != nil {
				return errors.Database(err)
			}
			if existing == nil {
				return errors.NotFound("Request")
			}
			return errors.Conflict("Request already resolved")
		}
		resolved = request

		verdict := "approved"
		if status == model.RequestStatusDenied {
			verdict = "denied"
		}
		notification, err = s.notificationRepo.WithTx(tx).Create(ctx, model.CreateNotificationParams{
			ID:              uuid.NewString(),
			Message:         fmt.Sprintf("Your request has been %s: %q", verdict, request.Message),
			TargetAccountID: &request.AccountID,
		})
		if err != nil {
			return errors.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventRequestResolve,
		AccountID: resolved.AccountID,
		ActorID:   actorID,
		Details: map[string]interface{}{
			"requestId": requestID,
			"status":    string(status),
		},
	})

	if pubErr := s.broker.PublishRequestUpdated(ctx, resolved); pubErr != nil {
		log.Warn().Err(pubErr).Str("requestId", requestID).Msg("failed to publish request update")
	}
	if pubErr := s.broker.PublishNotification(ctx, notification.TargetAccountID, notification); pubErr != nil {
		log.Warn().Err(pubErr).Str("notificationId", notification.ID).Msg("failed to publish notification")
	}

	return resolved, nil
}

// CreateNotification posts an admin notice, either to one account or to
// everyone when targetAccountID is nil.
func (s *WorkflowService) CreateNotification(ctx context.Context, actorID, message string, targetAccountID *string) (*model.Notification, error) {
	if message == "" {
		return nil, errors.MissingRequired("message")
	}

	if targetAccountID != nil {
		target, err := s.accountRepo.FindByID(ctx, *targetAccountID)
		if err != nil {
			return nil, errors.Database(err)
		}
		if target == nil {
			return nil, errors.NotFound("Target account")
		}
	}

	notification, err := s.notificationRepo.Create(ctx, model.CreateNotificationParams{
		ID:              uuid.NewString(),
		Message:         message,
		TargetAccountID: targetAccountID,
	})
	if err != nil {
		return nil, errors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventNotificationCreate,
		ActorID: actorID,
		Details: map[string]interface{}{
			"notificationId": notification.ID,
			"broadcast":      targetAccountID == nil,
		},
	})

	if pubErr := s.broker.PublishNotification(ctx, targetAccountID, notification); pubErr != nil {
		log.Warn().Err(pubErr).Str("notificationId", notification.ID).Msg("failed to publish notification")
	}

	return notification, nil
}

func (s *WorkflowService) ListNotifications(ctx context.Context, accountID string) ([]model.Notification, error) {
	notifications, err := s.notificationRepo.ListVisible(ctx, accountID)
	if err != nil {
		return nil, errors.Database(err)
	}
	return notifications, nil
}

func (s *WorkflowService) MarkAllRead(ctx context.Context, accountID string) error {
	if _, err := s.notificationRepo.MarkAllRead(ctx, accountID); err != nil {
		return errors.Database(err)
	}
	return nil
}

func (s *WorkflowService) UnreadCount(ctx context.Context, accountID string) (int, error) {
	count, err := s.notificationRepo.UnreadCount(ctx, accountID)
	if err != nil {
		return 0, errors.Database(err)
	}
	return count, nil
}
