package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/config"
	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/metrics"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/repository"
)

// RelaySender delivers a message to a webhook endpoint.
type RelaySender interface {
	Send(ctx context.Context, webhookURL string, message string) error
}

// AccountPublisher pushes fresh account state to connected clients.
type AccountPublisher interface {
	PublishAccountUpdated(ctx context.Context, accountID string, payload any) error
}

type SendParams struct {
	WebhookID string
	Message   string
	Bypass    bool
}

type SendResult struct {
	Account *model.Account
	Entry   *model.LogEntry
}

// MessageService runs the portal send pipeline: quota check, activity log
// entry, webhook delivery, then counter bump and state push.
type MessageService struct {
	accountRepo repository.AccountRepository
	logRepo     repository.LogEntryRepository
	webhookRepo repository.WebhookRepository
	quota       *QuotaService
	relay       RelaySender
	broker      AccountPublisher

	// Serializes sends per account so two concurrent requests cannot both
	// pass the limit check on the same remaining slot.
	sendMu sync.Map // accountID -> *sync.Mutex
}

func NewMessageService(
	accountRepo repository.AccountRepository,
	logRepo repository.LogEntryRepository,
	webhookRepo repository.WebhookRepository,
	quota *QuotaService,
	relay RelaySender,
	broker AccountPublisher,
) *MessageService {
	return &MessageService{
		accountRepo: accountRepo,
		logRepo:     logRepo,
		webhookRepo: webhookRepo,
		quota:       quota,
		relay:       relay,
		broker:      broker,
	}
}

func (s *MessageService) accountLock(accountID string) *sync.Mutex {
	mu, _ := s.sendMu.LoadOrStore(accountID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *MessageService) Send(ctx context.Context, account *model.Account, params SendParams) (*SendResult, error) {
	message := params.Message
	if params.Bypass {
		message = config.BypassMessage
	}
	if message == "" {
		return nil, errors.MissingRequired("message")
	}

	webhook, err := s.resolveWebhook(ctx, account, params.WebhookID)
	if err != nil {
		return nil, err
	}

	mu := s.accountLock(account.ID)
	mu.Lock()
	defer mu.Unlock()

	account, err = s.quota.Authorize(ctx, account, time.Now(), params.Bypass)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("Sending: %q", preview(message))
	entry, err := s.logRepo.Create(ctx, model.CreateLogEntryParams{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Message:   summary,
	})
	if err != nil {
		return nil, errors.Database(err)
	}

	log.Info().
		Str("accountId", account.ID).
		Str("entryId", entry.ID).
		Msg(summary)

	if err := s.relay.Send(ctx, webhook.URL, message); err != nil {
		metrics.RelaySendsTotal.WithLabelValues("error").Inc()

		detail := err.Error()
		if appErr, ok := errors.AsAppError(err); ok {
			detail = appErr.Message
		}
		if failed, markErr := s.logRepo.MarkError(ctx, entry.ID, detail); markErr != nil {
			log.Error().Err(markErr).Str("entryId", entry.ID).Msg("failed to record delivery error")
		} else if failed != nil {
			entry = failed
		}
		return &SendResult{Account: account, Entry: entry}, err
	}

	metrics.RelaySendsTotal.WithLabelValues("success").Inc()

	if updated, markErr := s.logRepo.MarkSuccess(ctx, entry.ID); markErr != nil {
		log.Error().Err(markErr).Str("entryId", entry.ID).Msg("failed to mark log entry success")
	} else if updated != nil {
		entry = updated
	}

	account, err = s.quota.RecordSend(ctx, account, params.Bypass)
	if err != nil {
		return &SendResult{Account: account, Entry: entry}, err
	}

	if pubErr := s.broker.PublishAccountUpdated(ctx, account.ID, account); pubErr != nil {
		log.Warn().Err(pubErr).Str("accountId", account.ID).Msg("failed to publish account update")
	}

	return &SendResult{Account: account, Entry: entry}, nil
}

// resolveWebhook picks the delivery target: an explicit webhook ID when given,
// otherwise the account's selected webhook. Ownership is always verified.
func (s *MessageService) resolveWebhook(ctx context.Context, account *model.Account, webhookID string) (*model.Webhook, error) {
	if webhookID == "" {
		if account.SelectedWebhookID == nil {
			return nil, errors.ValidationError("No webhook selected")
		}
		webhookID = *account.SelectedWebhookID
	}

	webhook, err := s.webhookRepo.FindByID(ctx, webhookID)
	if err != nil {
		return nil, errors.Database(err)
	}
	if webhook == nil || webhook.AccountID != account.ID {
		return nil, errors.NotFound("Webhook")
	}
	return webhook, nil
}

func (s *MessageService) List(ctx context.Context, accountID string, limit, offset int) ([]model.LogEntry, error) {
	entries, err := s.logRepo.FindByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, errors.Database(err)
	}
	return entries, nil
}

// SendStats reports delivery totals for the admin dashboard.
type SendStats struct {
	Today  int `json:"today"`
	Failed int `json:"failed"`
}

func (s *MessageService) Stats(ctx context.Context, now time.Time) (*SendStats, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)

	today, err := s.logRepo.CountSince(ctx, dayStart)
	if err != nil {
		return nil, errors.Database(err)
	}
	failed, err := s.logRepo.CountByStatus(ctx, model.LogStatusError)
	if err != nil {
		return nil, errors.Database(err)
	}
	return &SendStats{Today: today, Failed: failed}, nil
}

func preview(message string) string {
	runes := []rune(message)
	if len(runes) <= config.LogPreviewLength {
		return message
	}
	return fmt.Sprintf("%s...", string(runes[:config.LogPreviewLength]))
}
