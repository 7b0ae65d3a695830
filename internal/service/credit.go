package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/audit"
	"github.com/aosbot/portal-server-go/internal/config"
	"github.com/aosbot/portal-server-go/internal/database"
	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/metrics"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/repository"
)

// CreditService handles the aoc balance: limit purchases by users and manual
// adjustments by admins.
type CreditService struct {
	db          *database.DB
	accountRepo repository.AccountRepository
	broker      AccountPublisher
}

func NewCreditService(db *database.DB, accountRepo repository.AccountRepository, broker AccountPublisher) *CreditService {
	return &CreditService{
		db:          db,
		accountRepo: accountRepo,
		broker:      broker,
	}
}

// Packages lists the limit packages available for purchase.
func (s *CreditService) Packages() []config.LimitPackage {
	return config.LimitPackages
}

// Purchase exchanges balance for extra daily limit. Only the fixed packages
// can be bought; the debit and the limit grant land in one transaction.
func (s *CreditService) Purchase(ctx context.Context, accountID string, cost, amount int) (*model.Account, error) {
	pkg, ok := config.FindLimitPackage(cost, amount)
	if !ok {
		return nil, errors.ValidationError("Unknown limit package")
	}

	var purchased *model.Account
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.accountRepo.WithTx(tx)

		account, err := repo.FindByID(ctx, accountID)
		if err != nil {
			return errors.Database(err)
		}
		if account == nil {
			return errors.NotFound("Account")
		}
		if account.IsAdmin() {
			return errors.Forbidden("Admins have no daily limit to extend")
		}
		if account.AocBalance < pkg.Cost {
			return errors.InsufficientFunds()
		}

		purchased, err = repo.Purchase(ctx, accountID, pkg.Cost, pkg.Amount)
		if err != nil {
			return errors.Database(err)
		}
		if purchased == nil {
			// Balance moved under us between read and debit.
			return errors.InsufficientFunds()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PurchasesTotal.Inc()

	audit.Log(ctx, audit.Event{
		Type:      audit.EventLimitPurchase,
		AccountID: accountID,
		Details: map[string]interface{}{
			"cost":     pkg.Cost,
			"amount":   pkg.Amount,
			"newLimit": purchased.DailyLimit,
		},
	})

	log.Info().
		Str("accountId", accountID).
		Int("cost", pkg.Cost).
		Int("amount", pkg.Amount).
		Msg("daily limit purchased")

	if pubErr := s.broker.PublishAccountUpdated(ctx, accountID, purchased); pubErr != nil {
		log.Warn().Err(pubErr).Str("accountId", accountID).Msg("failed to publish account update")
	}

	return purchased, nil
}

// AdjustBalance applies an admin-ordered delta, clamped at zero. A negative
// amount with subtract=false is rejected so the two forms stay unambiguous.
func (s *CreditService) AdjustBalance(ctx context.Context, actorID, accountID string, amount int, subtract bool) (*model.Account, error) {
	if amount <= 0 {
		return nil, errors.ValidationError("Amount must be positive")
	}

	delta := amount
	if subtract {
		delta = -amount
	}

	account, err := s.accountRepo.AdjustBalance(ctx, accountID, delta)
	if err != nil {
		return nil, errors.Database(err)
	}
	if account == nil {
		return nil, errors.NotFound("Account")
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventBalanceAdjust,
		AccountID: accountID,
		ActorID:   actorID,
		Details: map[string]interface{}{
			"delta":      delta,
			"newBalance": account.AocBalance,
		},
	})

	if pubErr := s.broker.PublishAccountUpdated(ctx, accountID, account); pubErr != nil {
		log.Warn().Err(pubErr).Str("accountId", accountID).Msg("failed to publish account update")
	}

	return account, nil
}
