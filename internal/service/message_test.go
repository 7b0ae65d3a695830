package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aosbot/portal-server-go/internal/config"
	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/model"
)

func userAccount(count int) *model.Account {
	id := "hook-1"
	return &model.Account{
		ID:                "alice",
		Role:              model.RoleUser,
		DailyLimit:        20,
		MessageCount:      count,
		LastCountReset:    Today(time.Now()),
		SelectedWebhookID: &id,
	}
}

func testWebhook() *model.Webhook {
	return &model.Webhook{
		ID:        "hook-1",
		AccountID: "alice",
		Name:      "ops",
		URL:       "https://hooks.example.com/T/B/x",
	}
}

func newMessageService(
	accountRepo *mockAccountRepo,
	logRepo *mockLogEntryRepo,
	webhookRepo *mockWebhookRepo,
	relay *mockRelay,
	broker *mockBroker,
) *MessageService {
	return NewMessageService(accountRepo, logRepo, webhookRepo, NewQuotaService(accountRepo), relay, broker)
}

func TestMessageServiceSend(t *testing.T) {
	ctx := context.Background()

	t.Run("successful send runs the full pipeline", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		logRepo := new(mockLogEntryRepo)
		webhookRepo := new(mockWebhookRepo)
		relay := new(mockRelay)
		broker := new(mockBroker)

		account := userAccount(3)
		bumped := userAccount(4)

		webhookRepo.On("FindByID", ctx, "hook-1").Return(testWebhook(), nil)
		logRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateLogEntryParams) bool {
			return p.AccountID == "alice" && p.Message == `Sending: "deploy finished"`
		})).Return(&model.LogEntry{ID: "log-1", AccountID: "alice", Status: model.LogStatusSending}, nil)
		relay.On("Send", ctx, "https://hooks.example.com/T/B/x", "deploy finished").Return(nil)
		logRepo.On("MarkSuccess", ctx, "log-1").
			Return(&model.LogEntry{ID: "log-1", AccountID: "alice", Status: model.LogStatusSuccess}, nil)
		accountRepo.On("IncrementMessageCount", ctx, "alice").Return(bumped, nil)
		broker.On("PublishAccountUpdated", ctx, "alice", bumped).Return(nil)

		svc := newMessageService(accountRepo, logRepo, webhookRepo, relay, broker)
		result, err := svc.Send(ctx, account, SendParams{Message: "deploy finished"})
		require.NoError(t, err)
		assert.Equal(t, 4, result.Account.MessageCount)
		assert.Equal(t, model.LogStatusSuccess, result.Entry.Status)

		accountRepo.AssertExpectations(t)
		logRepo.AssertExpectations(t)
		relay.AssertExpectations(t)
		broker.AssertExpectations(t)
	})

	t.Run("delivery failure marks the entry and skips the counter", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		logRepo := new(mockLogEntryRepo)
		webhookRepo := new(mockWebhookRepo)
		relay := new(mockRelay)
		broker := new(mockBroker)

		account := userAccount(3)

		webhookRepo.On("FindByID", ctx, "hook-1").Return(testWebhook(), nil)
		logRepo.On("Create", ctx, mock.Anything).
			Return(&model.LogEntry{ID: "log-1", AccountID: "alice", Status: model.LogStatusSending}, nil)
		relay.On("Send", ctx, mock.Anything, mock.Anything).
			Return(errors.DeliveryFailed("channel_not_found"))
		detail := "channel_not_found"
		logRepo.On("MarkError", ctx, "log-1", "channel_not_found").
			Return(&model.LogEntry{ID: "log-1", AccountID: "alice", Status: model.LogStatusError, Error: &detail}, nil)

		svc := newMessageService(accountRepo, logRepo, webhookRepo, relay, broker)
		result, err := svc.Send(ctx, account, SendParams{Message: "hello"})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeDeliveryFailed, errors.GetCode(err))
		assert.Equal(t, model.LogStatusError, result.Entry.Status)

		accountRepo.AssertNotCalled(t, "IncrementMessageCount", mock.Anything, mock.Anything)
		broker.AssertNotCalled(t, "PublishAccountUpdated", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("bypass substitutes the fixed message and skips the counter", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		logRepo := new(mockLogEntryRepo)
		webhookRepo := new(mockWebhookRepo)
		relay := new(mockRelay)
		broker := new(mockBroker)

		account := userAccount(20) // at limit; bypass must still go through

		webhookRepo.On("FindByID", ctx, "hook-1").Return(testWebhook(), nil)
		logRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateLogEntryParams) bool {
			return p.Message == fmt.Sprintf("Sending: %q", config.BypassMessage)
		})).Return(&model.LogEntry{ID: "log-1", Status: model.LogStatusSending}, nil)
		relay.On("Send", ctx, mock.Anything, config.BypassMessage).Return(nil)
		logRepo.On("MarkSuccess", ctx, "log-1").
			Return(&model.LogEntry{ID: "log-1", Status: model.LogStatusSuccess}, nil)
		broker.On("PublishAccountUpdated", ctx, "alice", account).Return(nil)

		svc := newMessageService(accountRepo, logRepo, webhookRepo, relay, broker)
		result, err := svc.Send(ctx, account, SendParams{Message: "ignored", Bypass: true})
		require.NoError(t, err)
		assert.Equal(t, 20, result.Account.MessageCount)

		accountRepo.AssertNotCalled(t, "IncrementMessageCount", mock.Anything, mock.Anything)
	})

	t.Run("limit reached rejects before logging anything", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		logRepo := new(mockLogEntryRepo)
		webhookRepo := new(mockWebhookRepo)
		relay := new(mockRelay)
		broker := new(mockBroker)

		account := userAccount(20)
		webhookRepo.On("FindByID", ctx, "hook-1").Return(testWebhook(), nil)

		svc := newMessageService(accountRepo, logRepo, webhookRepo, relay, broker)
		_, err := svc.Send(ctx, account, SendParams{Message: "hello"})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeLimitReached, errors.GetCode(err))

		logRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		relay.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("log entry stores a truncated summary", func(t *testing.T) {
		account := userAccount(0)
		long := strings.Repeat("x", 200)
		want := fmt.Sprintf("Sending: %q", strings.Repeat("x", config.LogPreviewLength)+"...")

		accountRepo := new(mockAccountRepo)
		logRepo := new(mockLogEntryRepo)
		webhookRepo := new(mockWebhookRepo)
		relay := new(mockRelay)
		broker := new(mockBroker)

		webhookRepo.On("FindByID", ctx, "hook-1").Return(testWebhook(), nil)
		logRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateLogEntryParams) bool {
			return p.Message == want
		})).Return(&model.LogEntry{ID: "log-1", AccountID: "alice", Status: model.LogStatusSending}, nil)
		relay.On("Send", ctx, mock.Anything, long).Return(nil)
		logRepo.On("MarkSuccess", ctx, "log-1").
			Return(&model.LogEntry{ID: "log-1", AccountID: "alice", Status: model.LogStatusSuccess}, nil)
		accountRepo.On("IncrementMessageCount", ctx, "alice").Return(userAccount(1), nil)
		broker.On("PublishAccountUpdated", ctx, "alice", mock.Anything).Return(nil)

		svc := newMessageService(accountRepo, logRepo, webhookRepo, relay, broker)
		_, err := svc.Send(ctx, account, SendParams{Message: long})
		require.NoError(t, err)

		logRepo.AssertExpectations(t)
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		svc := newMessageService(new(mockAccountRepo), new(mockLogEntryRepo), new(mockWebhookRepo), new(mockRelay), new(mockBroker))

		_, err := svc.Send(ctx, userAccount(0), SendParams{Message: ""})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeMissingRequired, errors.GetCode(err))
	})

	t.Run("webhook owned by someone else is not found", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		logRepo := new(mockLogEntryRepo)
		webhookRepo := new(mockWebhookRepo)

		other := testWebhook()
		other.AccountID = "bob"
		webhookRepo.On("FindByID", ctx, "hook-1").Return(other, nil)

		svc := newMessageService(accountRepo, logRepo, webhookRepo, new(mockRelay), new(mockBroker))
		_, err := svc.Send(ctx, userAccount(0), SendParams{WebhookID: "hook-1", Message: "hello"})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeNotFound, errors.GetCode(err))
	})

	t.Run("no webhook selected", func(t *testing.T) {
		account := userAccount(0)
		account.SelectedWebhookID = nil

		svc := newMessageService(new(mockAccountRepo), new(mockLogEntryRepo), new(mockWebhookRepo), new(mockRelay), new(mockBroker))
		_, err := svc.Send(ctx, account, SendParams{Message: "hello"})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeValidation, errors.GetCode(err))
	})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	long := strings.Repeat("a", 80)
	got := preview(long)
	assert.Equal(t, strings.Repeat("a", config.LogPreviewLength)+"...", got)
}
