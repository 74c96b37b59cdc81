// Package service contains the business logic layer: the account facade
// that composes the credential primitives, the referral ledger, and the
// account store into the four public operations.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → normalizes, orchestrates, enforces rules
//	Repository (data layer)  → reads/writes the database
//
// The service accepts primitives and returns domain types and apperror
// kinds — it has zero knowledge of HTTP. The same four operations could sit
// behind gRPC or a CLI without a single change here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/referral-rewards/internal/apperror"
	"github.com/sakif/referral-rewards/internal/auth"
	"github.com/sakif/referral-rewards/internal/metrics"
	"github.com/sakif/referral-rewards/internal/model"
	"github.com/sakif/referral-rewards/internal/referral"
	"github.com/sakif/referral-rewards/internal/repository"
)

// AccountService is the facade over registration, authentication, referral
// issuance, and profile lookup.
//
// DEPENDENCIES (injected via NewAccountService):
//   - accounts  repository.AccountRepository → durable account storage
//   - passwords *auth.PasswordService        → bcrypt hashing
//   - tokens    *auth.TokenService           → JWT issue/validate
//   - ledger    *referral.Ledger             → all referral-counter mutations
//   - logger    *slog.Logger                 → structured logging
type AccountService struct {
	accounts  repository.AccountRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	ledger    *referral.Ledger
	logger    *slog.Logger
}

// NewAccountService creates an AccountService with all dependencies.
// Called from the composition root in server.go.
func NewAccountService(
	accounts repository.AccountRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	ledger *referral.Ledger,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		passwords: passwords,
		tokens:    tokens,
		ledger:    ledger,
		logger:    logger,
	}
}

// NormalizeEmail lower-cases and trims an email address. The normalized form
// is the unique key — "Alice@Example.COM " and "alice@example.com" are the
// same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account.
//
// If referralCode is non-empty, the code is redeemed against its owner
// first, and the new account starts with the signup bonus already on its
// balance — the bonus is part of the INSERT, never a follow-up update. A bad
// code (unknown, or the freak self-referral) aborts the whole registration.
//
// DUPLICATE EMAILS:
// The cheap GetByEmail up front fails the common case before any bcrypt or
// ledger work, but it is not the real guard — two concurrent registrations
// both pass it. The store's UNIQUE constraint at insert time is the
// authoritative signal, and the repository reports it as the same
// ErrDuplicateEmail kind.
func (s *AccountService) Register(ctx context.Context, email, secret, referralCode string) (*model.Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if secret == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, apperror.DuplicateEmail(email)
	} else if !errors.Is(err, apperror.ErrUnknownAccount) {
		return nil, fmt.Errorf("service/account: checking email: %w", err)
	}

	secretHash, err := s.passwords.Hash(secret)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	// The account ID is minted here, before the row exists, because a
	// redemption references the new account's ID in the referrer's ledger.
	account := &model.Account{
		ID:         xid.New().String(),
		Email:      email,
		SecretHash: secretHash,
	}

	referred := false
	if referralCode != "" {
		result, err := s.ledger.Redeem(ctx, referralCode, account.ID)
		if err != nil {
			return nil, fmt.Errorf("service/account: redeeming code: %w", err)
		}
		account.CreditBalance = s.ledger.SignupBonus()
		referred = true

		metrics.RedemptionsTotal.Inc()
		if result.Awarded {
			metrics.AwardsTotal.Inc()
		}
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("service/account: creating account: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues(fmt.Sprintf("%t", referred)).Inc()
	s.logger.Info("account registered",
		slog.String("accountID", account.ID),
		slog.Bool("referred", referred),
	)

	return account, nil
}

// Authenticate verifies an email/secret pair and returns a bearer token.
//
// Failure kinds: ErrUnknownAccount for an unregistered email,
// ErrBadCredential for a wrong secret. The HTTP layer maps both to 401.
func (s *AccountService) Authenticate(ctx context.Context, email, secret string) (string, error) {
	email = NormalizeEmail(email)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrUnknownAccount) {
			metrics.AuthFailuresTotal.Inc()
		}
		return "", fmt.Errorf("service/account: looking up account: %w", err)
	}

	if err := s.passwords.Verify(account.SecretHash, secret); err != nil {
		metrics.AuthFailuresTotal.Inc()
		s.logger.Info("authentication failed",
			slog.String("accountID", account.ID),
		)
		return "", apperror.BadCredential()
	}

	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return "", fmt.Errorf("service/account: issuing token for %s: %w", account.ID, err)
	}

	s.logger.Info("account authenticated", slog.String("accountID", account.ID))
	return token, nil
}

// IssueReferralLink mints the account's referral code (one-shot — the
// second call fails ErrAlreadyIssued) and returns the shareable URL.
func (s *AccountService) IssueReferralLink(ctx context.Context, accountID string) (string, error) {
	if accountID == "" {
		return "", apperror.ValidationFailed("accountID", "account ID is required")
	}

	code, err := s.ledger.IssueCode(ctx, accountID)
	if err != nil {
		return "", err
	}

	metrics.CodesIssuedTotal.Inc()
	return s.ledger.ShareURL(code), nil
}

// GetProfile returns the outward-facing view of an account: email, referral
// state, and credit balance. The secret hash and the storage version never
// leave this method.
func (s *AccountService) GetProfile(ctx context.Context, accountID string) (*model.ProfileView, error) {
	if accountID == "" {
		return nil, apperror.ValidationFailed("accountID", "account ID is required")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching account: %w", err)
	}

	referred, err := s.accounts.ReferredAccountIDs(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching referred accounts: %w", err)
	}

	return &model.ProfileView{
		ID:                 account.ID,
		Email:              account.Email,
		ReferralCode:       account.ReferralCode,
		ReferralCount:      account.ReferralCount,
		CreditBalance:      account.CreditBalance,
		ReferredAccountIDs: referred,
	}, nil
}

// ValidateToken is a thin delegation to TokenService.Validate so transport
// code only needs the service, not the auth package.
func (s *AccountService) ValidateToken(tokenStr string) (string, error) {
	accountID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/account: %w", err)
	}
	return accountID, nil
}
