package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/audit"
	"github.com/aosbot/portal-server-go/internal/config"
	"github.com/aosbot/portal-server-go/internal/database"
	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/repository"
)

// AccountEventPublisher pushes account lifecycle events to connected clients.
type AccountEventPublisher interface {
	AccountPublisher
	PublishAccountDeleted(ctx context.Context, accountID string) error
}

// AccountService manages the account roster: creation, partial updates with
// role transitions, and full cascade deletion.
type AccountService struct {
	db               *database.DB
	accountRepo      repository.AccountRepository
	webhookRepo      repository.WebhookRepository
	logRepo          repository.LogEntryRepository
	requestRepo      repository.RequestRepository
	notificationRepo repository.NotificationRepository
	sessionRepo      repository.SessionRepository
	broker           AccountEventPublisher
}

func NewAccountService(
	db *database.DB,
	accountRepo repository.AccountRepository,
	webhookRepo repository.WebhookRepository,
	logRepo repository.LogEntryRepository,
	requestRepo repository.RequestRepository,
	notificationRepo repository.NotificationRepository,
	sessionRepo repository.SessionRepository,
	broker AccountEventPublisher,
) *AccountService {
	return &AccountService{
		db:               db,
		accountRepo:      accountRepo,
		webhookRepo:      webhookRepo,
		logRepo:          logRepo,
		requestRepo:      requestRepo,
		notificationRepo: notificationRepo,
		sessionRepo:      sessionRepo,
		broker:           broker,
	}
}

func (s *AccountService) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Database(err)
	}
	return account, nil
}

func (s *AccountService) List(ctx context.Context) ([]model.Account, error) {
	accounts, err := s.accountRepo.FindAll(ctx)
	if err != nil {
		return nil, errors.Database(err)
	}
	return accounts, nil
}

// Create registers a new account with user defaults. IDs are caller-chosen
// and must be unique.
func (s *AccountService) Create(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, errors.MissingRequired("User ID")
	}

	existing, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Database(err)
	}
	if existing != nil {
		return nil, errors.AlreadyExists("Account")
	}

	account, err := s.accountRepo.Create(ctx, model.CreateAccountParams{
		ID:             id,
		DailyLimit:     config.DefaultDailyLimit,
		AocBalance:     config.DefaultBalance,
		LastCountReset: Today(time.Now()),
	})
	if err != nil {
		return nil, errors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventAccountCreate,
		AccountID: id,
	})

	log.Info().Str("accountId", id).Msg("account created")

	return account, nil
}

// Update applies a partial update. Changing the role overwrites the quota
// fields with the new role's baseline: admins get effectively unlimited
// budget and users fall back to the stock allowance.
func (s *AccountService) Update(ctx context.Context, actorID, id string, params model.UpdateAccountParams) (*model.Account, error) {
	if params.Empty() {
		return nil, errors.ValidationError("No update fields provided")
	}

	current, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Database(err)
	}
	if current == nil {
		return nil, errors.NotFound("Account")
	}

	if params.Role != nil && !params.Role.Valid() {
		return nil, errors.InvalidInput("role", "must be admin or user")
	}

	roleChanged := params.Role != nil && *params.Role != current.Role
	if roleChanged {
		if *params.Role == model.RoleAdmin {
			balance := config.AdminBalance
			limit := config.AdminDailyLimit
			params.AocBalance = &balance
			params.DailyLimit = &limit
		} else {
			balance := config.DefaultBalance
			limit := config.DefaultDailyLimit
			params.AocBalance = &balance
			params.DailyLimit = &limit
		}
	}

	account, err := s.accountRepo.Update(ctx, id, params)
	if err != nil {
		return nil, errors.Database(err)
	}
	if account == nil {
		return nil, errors.NotFound("Account")
	}

	if roleChanged {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventRoleChange,
			AccountID: id,
			ActorID:   actorID,
			Details: map[string]interface{}{
				"role": string(*params.Role),
			},
		})
	} else {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventAccountUpdate,
			AccountID: id,
			ActorID:   actorID,
		})
	}

	if pubErr := s.broker.PublishAccountUpdated(ctx, id, account); pubErr != nil {
		log.Warn().Err(pubErr).Str("accountId", id).Msg("failed to publish account update")
	}

	return account, nil
}

// Delete removes the account and everything tied to it in one transaction,
// then tells any live session for it to end.
func (s *AccountService) Delete(ctx context.Context, actorID, id string) error {
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.logRepo.WithTx(tx).DeleteByAccountID(ctx, id); err != nil {
			return err
		}
		if _, err := s.requestRepo.WithTx(tx).DeleteByAccountID(ctx, id); err != nil {
			return err
		}
		notifRepo := s.notificationRepo.WithTx(tx)
		if _, err := notifRepo.DeleteReadsByAccountID(ctx, id); err != nil {
			return err
		}
		if _, err := notifRepo.DeleteByTarget(ctx, id); err != nil {
			return err
		}
		if _, err := s.webhookRepo.WithTx(tx).DeleteByAccountID(ctx, id); err != nil {
			return err
		}
		if _, err := s.sessionRepo.WithTx(tx).DeleteByAccountID(ctx, id); err != nil {
			return err
		}

		deleted, err := s.accountRepo.WithTx(tx).Delete(ctx, id)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return errors.NotFound("Account")
		}
		return nil
	})
	if err != nil {
		if errors.IsAppError(err) {
			return err
		}
		return errors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventAccountDelete,
		AccountID: id,
		ActorID:   actorID,
	})

	log.Info().Str("accountId", id).Msg("account deleted")

	if pubErr := s.broker.PublishAccountDeleted(ctx, id); pubErr != nil {
		log.Warn().Err(pubErr).Str("accountId", id).Msg("failed to publish account deletion")
	}

	return nil
}
