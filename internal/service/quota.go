package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/metrics"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/repository"
)

// Today formats the instant as a UTC calendar date. Daily counters reset
// when this value moves past an account's last_count_reset.
func Today(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// Decision is the outcome of a pure quota evaluation, before any state is
// persisted.
type Decision struct {
	Allowed    bool
	Reason     string
	NeedsReset bool
}

const (
	ReasonAdmin     = "admin"
	ReasonBypass    = "bypass"
	ReasonOK        = "ok"
	ReasonSuspended = "suspended"
	ReasonLimit     = "limit_reached"
)

// Evaluate decides whether the account may send a message at the given
// instant. It does not mutate anything; NeedsReset tells the caller that the
// counter belongs to a previous day and must be zeroed before comparing.
func Evaluate(account *model.Account, now time.Time, bypass bool) Decision {
	if account.IsAdmin() {
		return Decision{Allowed: true, Reason: ReasonAdmin}
	}
	if account.IsSuspended {
		return Decision{Allowed: false, Reason: ReasonSuspended}
	}

	today := Today(now)
	needsReset := account.LastCountReset != today

	count := account.MessageCount
	if needsReset {
		count = 0
	}

	if bypass {
		return Decision{Allowed: true, Reason: ReasonBypass, NeedsReset: needsReset}
	}
	if count >= account.DailyLimit {
		return Decision{Allowed: false, Reason: ReasonLimit, NeedsReset: needsReset}
	}
	return Decision{Allowed: true, Reason: ReasonOK, NeedsReset: needsReset}
}

type QuotaService struct {
	accountRepo repository.AccountRepository
}

func NewQuotaService(accountRepo repository.AccountRepository) *QuotaService {
	return &QuotaService{accountRepo: accountRepo}
}

// EnsureDailyReset zeroes the account's daily counter if the stored reset
// date is behind today, returning the fresh row. Untouched accounts are
// returned as-is.
func (s *QuotaService) EnsureDailyReset(ctx context.Context, account *model.Account, now time.Time) (*model.Account, error) {
	today := Today(now)
	if account.LastCountReset == today {
		return account, nil
	}

	updated, err := s.accountRepo.ResetDailyCount(ctx, account.ID, today)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return account, nil
	}

	log.Debug().
		Str("accountId", account.ID).
		Str("date", today).
		Msg("daily message count reset")

	return updated, nil
}

// Authorize checks whether the account may send now, persisting a daily
// reset when one is due. The returned account reflects any reset.
func (s *QuotaService) Authorize(ctx context.Context, account *model.Account, now time.Time, bypass bool) (*model.Account, error) {
	decision := Evaluate(account, now, bypass)

	if decision.Reason == ReasonSuspended {
		metrics.QuotaDenialsTotal.WithLabelValues(ReasonSuspended).Inc()
		return account, errors.AccountSuspended()
	}

	if decision.NeedsReset {
		updated, err := s.EnsureDailyReset(ctx, account, now)
		if err != nil {
			return account, errors.Database(err)
		}
		account = updated
	}

	if !decision.Allowed {
		metrics.QuotaDenialsTotal.WithLabelValues(ReasonLimit).Inc()
		return account, errors.LimitReached(account.DailyLimit)
	}

	return account, nil
}

// RecordSend bumps the daily counter after a successful delivery. Admin and
// bypass sends are free.
func (s *QuotaService) RecordSend(ctx context.Context, account *model.Account, bypass bool) (*model.Account, error) {
	if account.IsAdmin() || bypass {
		return account, nil
	}

	updated, err := s.accountRepo.IncrementMessageCount(ctx, account.ID)
	if err != nil {
		return account, errors.Database(err)
	}
	if updated == nil {
		return account, nil
	}
	return updated, nil
}
