package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/model"
)

func TestWorkflowServiceCreateRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending request", func(t *testing.T) {
		db, _ := newTestDB(t)
		requestRepo := new(mockRequestRepo)
		broker := new(mockBroker)

		created := &model.Request{ID: "req-1", AccountID: "alice", Message: "please unsuspend me", Status: model.RequestStatusPending}
		requestRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateRequestParams) bool {
			return p.AccountID == "alice" && p.Message == "please unsuspend me"
		})).Return(created, nil)
		broker.On("PublishRequestUpdated", ctx, created).Return(nil)

		svc := NewWorkflowService(db, requestRepo, new(mockNotificationRepo), new(mockAccountRepo), broker)
		got, err := svc.CreateRequest(ctx, "alice", "please unsuspend me")
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusPending, got.Status)
		requestRepo.AssertExpectations(t)
	})

	t.Run("empty message rejected", func(t *testing.T) {
		db, _ := newTestDB(t)
		svc := NewWorkflowService(db, new(mockRequestRepo), new(mockNotificationRepo), new(mockAccountRepo), new(mockBroker))

		_, err := svc.CreateRequest(ctx, "alice", "")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeMissingRequired, errors.GetCode(err))
	})
}

func TestWorkflowServiceResolveRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("approval notifies the author exactly once", func(t *testing.T) {
		db, sqlMock := newTestDB(t)
		requestRepo := new(mockRequestRepo)
		notificationRepo := new(mockNotificationRepo)
		broker := new(mockBroker)

		sqlMock.ExpectBegin()
		sqlMock.ExpectCommit()

		author := "alice"
		resolved := &model.Request{ID: "req-1", AccountID: author, Message: "raise my limit", Status: model.RequestStatusApproved}
		requestRepo.On("Resolve", ctx, "req-1", model.RequestStatusApproved).Return(resolved, nil)

		notification := &model.Notification{ID: "ntf-1", TargetAccountID: &author}
		notificationRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateNotificationParams) bool {
			return p.TargetAccountID != nil && *p.TargetAccountID == author &&
				p.Message == `Your request has been approved: "raise my limit"`
		})).Return(notification, nil)

		broker.On("PublishRequestUpdated", ctx, resolved).Return(nil)
		broker.On("PublishNotification", ctx, &author, notification).Return(nil)

		svc := NewWorkflowService(db, requestRepo, notificationRepo, new(mockAccountRepo), broker)
		got, err := svc.ResolveRequest(ctx, "root", "req-1", model.RequestStatusApproved)
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusApproved, got.Status)

		notificationRepo.AssertNumberOfCalls(t, "Create", 1)
		require.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("denial wording", func(t *testing.T) {
		db, sqlMock := newTestDB(t)
		requestRepo := new(mockRequestRepo)
		notificationRepo := new(mockNotificationRepo)
		broker := new(mockBroker)

		sqlMock.ExpectBegin()
		sqlMock.ExpectCommit()

		author := "bob"
		resolved := &model.Request{ID: "req-2", AccountID: author, Message: "more credits", Status: model.RequestStatusDenied}
		requestRepo.On("Resolve", ctx, "req-2", model.RequestStatusDenied).Return(resolved, nil)
		notificationRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateNotificationParams) bool {
			return p.Message == `Your request has been denied: "more credits"`
		})).Return(&model.Notification{ID: "ntf-2", TargetAccountID: &author}, nil)
		broker.On("PublishRequestUpdated", ctx, mock.Anything).Return(nil)
		broker.On("PublishNotification", ctx, &author, mock.Anything).Return(nil)

		svc := NewWorkflowService(db, requestRepo, notificationRepo, new(mockAccountRepo), broker)
		_, err := svc.ResolveRequest(ctx, "root", "req-2", model.RequestStatusDenied)
		require.NoError(t, err)
	})

	t.Run("already resolved is a conflict", func(t *testing.T) {
		db, sqlMock := newTestDB(t)
		requestRepo := new(mockRequestRepo)
		notificationRepo := new(mockNotificationRepo)

		sqlMock.ExpectBegin()
		sqlMock.ExpectRollback()

		requestRepo.On("Resolve", ctx, "req-1", model.RequestStatusApproved).Return(nil, nil)
		requestRepo.On("FindByID", ctx, "req-1").
			Return(&model.Request{ID: "req-1", Status: model.RequestStatusApproved}, nil)

		svc := NewWorkflowService(db, requestRepo, notificationRepo, new(mockAccountRepo), new(mockBroker))
		_, err := svc.ResolveRequest(ctx, "root", "req-1", model.RequestStatusApproved)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConflict, errors.GetCode(err))

		notificationRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("missing request", func(t *testing.T) {
		db, sqlMock := newTestDB(t)
		requestRepo := new(mockRequestRepo)

		sqlMock.ExpectBegin()
		sqlMock.ExpectRollback()

		requestRepo.On("Resolve", ctx, "ghost", model.RequestStatusDenied).Return(nil, nil)
		requestRepo.On("FindByID", ctx, "ghost").Return(nil, nil)

		svc := NewWorkflowService(db, requestRepo, new(mockNotificationRepo), new(mockAccountRepo), new(mockBroker))
		_, err := svc.ResolveRequest(ctx, "root", "ghost", model.RequestStatusDenied)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeNotFound, errors.GetCode(err))
	})

	t.Run("pending is not a valid resolution", func(t *testing.T) {
		db, _ := newTestDB(t)
		svc := NewWorkflowService(db, new(mockRequestRepo), new(mockNotificationRepo), new(mockAccountRepo), new(mockBroker))

		_, err := svc.ResolveRequest(ctx, "root", "req-1", model.RequestStatusPending)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
	})
}

func TestWorkflowServiceCreateNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("broadcast skips the target check", func(t *testing.T) {
		db, _ := newTestDB(t)
		accountRepo := new(mockAccountRepo)
		notificationRepo := new(mockNotificationRepo)
		broker := new(mockBroker)

		created := &model.Notification{ID: "ntf-1", Message: "maintenance tonight"}
		notificationRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateNotificationParams) bool {
			return p.TargetAccountID == nil && p.Message == "maintenance tonight"
		})).Return(created, nil)
		broker.On("PublishNotification", ctx, (*string)(nil), created).Return(nil)

		svc := NewWorkflowService(db, new(mockRequestRepo), notificationRepo, accountRepo, broker)
		_, err := svc.CreateNotification(ctx, "root", "maintenance tonight", nil)
		require.NoError(t, err)

		accountRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("targeted notification requires an existing account", func(t *testing.T) {
		db, _ := newTestDB(t)
		accountRepo := new(mockAccountRepo)
		accountRepo.On("FindByID", ctx, "ghost").Return(nil, nil)

		svc := NewWorkflowService(db, new(mockRequestRepo), new(mockNotificationRepo), accountRepo, new(mockBroker))
		target := "ghost"
		_, err := svc.CreateNotification(ctx, "root", "hello", &target)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeNotFound, errors.GetCode(err))
	})
}

func TestWorkflowServiceReadMarkers(t *testing.T) {
	ctx := context.Background()

	t.Run("mark all read is scoped to the viewer", func(t *testing.T) {
		db, _ := newTestDB(t)
		notificationRepo := new(mockNotificationRepo)
		notificationRepo.On("MarkAllRead", ctx, "alice").Return(int64(3), nil)

		svc := NewWorkflowService(db, new(mockRequestRepo), notificationRepo, new(mockAccountRepo), new(mockBroker))
		require.NoError(t, svc.MarkAllRead(ctx, "alice"))
		notificationRepo.AssertExpectations(t)
	})

	t.Run("unread count", func(t *testing.T) {
		db, _ := newTestDB(t)
		notificationRepo := new(mockNotificationRepo)
		notificationRepo.On("UnreadCount", ctx, "alice").Return(2, nil)

		svc := NewWorkflowService(db, new(mockRequestRepo), notificationRepo, new(mockAccountRepo), new(mockBroker))
		count, err := svc.UnreadCount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}
