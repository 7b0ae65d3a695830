package service

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/repository"
)

// WebhookService manages an account's webhook targets and which one is
// currently selected for sending.
type WebhookService struct {
	accountRepo repository.AccountRepository
	webhookRepo repository.WebhookRepository
	broker      AccountPublisher
}

func NewWebhookService(
	accountRepo repository.AccountRepository,
	webhookRepo repository.WebhookRepository,
	broker AccountPublisher,
) *WebhookService {
	return &WebhookService{
		accountRepo: accountRepo,
		webhookRepo: webhookRepo,
		broker:      broker,
	}
}

func (s *WebhookService) List(ctx context.Context, accountID string) ([]model.Webhook, error) {
	webhooks, err := s.webhookRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, errors.Database(err)
	}
	return webhooks, nil
}

// Add registers a webhook. The first webhook an account adds becomes its
// selection automatically.
func (s *WebhookService) Add(ctx context.Context, account *model.Account, name, rawURL string) (*model.Webhook, error) {
	if name == "" {
		return nil, errors.MissingRequired("name")
	}
	if rawURL == "" {
		return nil, errors.MissingRequired("url")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.ValidationError("Webhook URL must be a valid http or https URL")
	}

	webhook, err := s.webhookRepo.Create(ctx, model.CreateWebhookParams{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Name:      name,
		URL:       rawURL,
	})
	if err != nil {
		return nil, errors.Database(err)
	}

	if account.SelectedWebhookID == nil {
		if err := s.accountRepo.SetSelectedWebhook(ctx, account.ID, &webhook.ID); err != nil {
			return nil, errors.Database(err)
		}
		s.publishAccount(ctx, account.ID)
	}

	log.Info().
		Str("accountId", account.ID).
		Str("webhookId", webhook.ID).
		Str("name", name).
		Msg("webhook added")

	return webhook, nil
}

// Remove deletes one of the account's webhooks. When the selected webhook is
// removed, selection falls back to the first remaining webhook, or none.
func (s *WebhookService) Remove(ctx context.Context, account *model.Account, webhookID string) error {
	webhook, err := s.webhookRepo.FindByID(ctx, webhookID)
	if err != nil {
		return errors.Database(err)
	}
	if webhook == nil || webhook.AccountID != account.ID {
		return errors.NotFound("Webhook")
	}

	if _, err := s.webhookRepo.Delete(ctx, webhookID); err != nil {
		return errors.Database(err)
	}

	if account.SelectedWebhookID != nil && *account.SelectedWebhookID == webhookID {
		remaining, err := s.webhookRepo.FindByAccountID(ctx, account.ID)
		if err != nil {
			return errors.Database(err)
		}
		var next *string
		if len(remaining) > 0 {
			next = &remaining[0].ID
		}
		if err := s.accountRepo.SetSelectedWebhook(ctx, account.ID, next); err != nil {
			return errors.Database(err)
		}
		s.publishAccount(ctx, account.ID)
	}

	log.Info().
		Str("accountId", account.ID).
		Str("webhookId", webhookID).
		Msg("webhook removed")

	return nil
}

// Select marks one of the account's webhooks as the sending target.
func (s *WebhookService) Select(ctx context.Context, account *model.Account, webhookID string) error {
	webhook, err := s.webhookRepo.FindByID(ctx, webhookID)
	if err != nil {
		return errors.Database(err)
	}
	if webhook == nil || webhook.AccountID != account.ID {
		return errors.NotFound("Webhook")
	}

	if err := s.accountRepo.SetSelectedWebhook(ctx, account.ID, &webhookID); err != nil {
		return errors.Database(err)
	}
	s.publishAccount(ctx, account.ID)
	return nil
}

func (s *WebhookService) publishAccount(ctx context.Context, accountID string) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil || account == nil {
		return
	}
	if pubErr := s.broker.PublishAccountUpdated(ctx, accountID, account); pubErr != nil {
		log.Warn().Err(pubErr).Str("accountId", accountID).Msg("failed to publish account update")
	}
}
