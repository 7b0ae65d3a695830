package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/audit"
	"github.com/aosbot/portal-server-go/internal/config"
	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/repository"
	"github.com/aosbot/portal-server-go/internal/util"
)

// SessionService authenticates portal logins and resolves session cookies
// back to accounts. Tokens are random and only their HMAC lands in the
// database.
type SessionService struct {
	accountRepo   repository.AccountRepository
	sessionRepo   repository.SessionRepository
	quota         *QuotaService
	sessionSecret string
}

func NewSessionService(
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	quota *QuotaService,
	sessionSecret string,
) *SessionService {
	return &SessionService{
		accountRepo:   accountRepo,
		sessionRepo:   sessionRepo,
		quota:         quota,
		sessionSecret: sessionSecret,
	}
}

// Login authenticates by account ID and opens a session. The account's daily
// counter is reconciled here so the client always sees today's numbers.
func (s *SessionService) Login(ctx context.Context, accountID string) (*model.Account, string, error) {
	if accountID == "" {
		return nil, "", errors.MissingRequired("User ID")
	}

	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, "", errors.Database(err)
	}
	if account == nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventLoginFailure,
			AccountID: accountID,
		})
		return nil, "", errors.InvalidCredential()
	}

	account, err = s.quota.EnsureDailyReset(ctx, account, time.Now())
	if err != nil {
		return nil, "", errors.Database(err)
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, "", errors.Internal("failed to generate session token").WithCause(err)
	}

	_, err = s.sessionRepo.Create(ctx, model.CreatePortalSessionParams{
		ID:        uuid.NewString(),
		TokenHash: util.HmacSHA256(s.sessionSecret, token),
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(config.SessionTTL),
	})
	if err != nil {
		return nil, "", errors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventLoginSuccess,
		AccountID: account.ID,
	})

	log.Info().Str("accountId", account.ID).Msg("portal login")

	return account, token, nil
}

// Logout ends the session behind the token, if one exists.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	tokenHash := util.HmacSHA256(s.sessionSecret, token)
	session, _ := s.sessionRepo.FindByTokenHash(ctx, tokenHash)
	if session == nil {
		return nil
	}

	if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
		return errors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventLogout,
		AccountID: session.AccountID,
	})

	return nil
}

// Resolve maps a session token to its live account. A session whose account
// has been deleted is discarded on sight, which is what forces the client
// out after an admin removes the account.
func (s *SessionService) Resolve(ctx context.Context, token string) (*model.PortalSession, *model.Account, error) {
	tokenHash := util.HmacSHA256(s.sessionSecret, token)
	session, err := s.sessionRepo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, nil, errors.Database(err)
	}
	if session == nil {
		return nil, nil, nil
	}

	account, err := s.accountRepo.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, nil, errors.Database(err)
	}
	if account == nil {
		if delErr := s.sessionRepo.Delete(ctx, session.ID); delErr != nil {
			log.Error().Err(delErr).Str("sessionId", session.ID).Msg("failed to delete orphaned session")
		}
		audit.Log(ctx, audit.Event{
			Type:      audit.EventForcedLogout,
			AccountID: session.AccountID,
		})
		return nil, nil, nil
	}

	return session, account, nil
}
