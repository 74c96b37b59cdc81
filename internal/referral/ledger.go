package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/referral-rewards/internal/apperror"
	"github.com/sakif/referral-rewards/internal/repository"
)

// Default reward constants. Overridable through Config, but these match the
// product behavior: every 5th redemption pays the referrer 10 credits, and a
// new account that registers with a valid code starts with 10 credits.
const (
	DefaultCadence     = 5
	DefaultAward       = 10
	DefaultSignupBonus = 10
)

// maxRedeemRetries bounds the optimistic-concurrency loop in Redeem. Each
// retry re-reads the referrer, so a retry only happens when another
// redemption actually committed in between — five losses in a row means the
// account is under heavy contention and the caller should come back.
const maxRedeemRetries = 5

// maxIssueRetries bounds code regeneration when a freshly generated code
// collides with an existing one. With a ~10^12 code space this effectively
// never fires; the bound exists so a broken randomness source can't loop
// forever.
const maxIssueRetries = 3

// Config carries the deployment-specific referral parameters.
//
// This replaces any notion of a global config object: the ledger receives
// its constants explicitly at construction, so tests can run with a cadence
// of 2 and production with 5 without touching package state.
type Config struct {
	BaseURL     string // public base URL referral links are built from
	Cadence     int    // every Cadence-th redemption triggers an award
	Award       int64  // credits granted to the referrer per award event
	SignupBonus int64  // one-time credits granted to a new account that used a code
}

// DefaultConfig returns the production constants with the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Cadence:     DefaultCadence,
		Award:       DefaultAward,
		SignupBonus: DefaultSignupBonus,
	}
}

// RedeemResult reports what a successful redemption did to the referrer.
type RedeemResult struct {
	ReferrerID    string // account that owns the redeemed code
	ReferralCount int64  // referrer's count after this redemption
	Awarded       bool   // true if this redemption landed on a cadence boundary
}

// Ledger is the referral state machine.
//
// Per account it governs a single irreversible transition — no code → code
// issued — and the counters driven by other accounts redeeming that code.
// All mutations go through the store's conditional primitives, so the ledger
// itself holds no state and is safe for concurrent use.
type Ledger struct {
	accounts repository.AccountRepository
	gen      *Generator
	cfg      Config
	logger   *slog.Logger
}

// NewLedger creates a Ledger. Non-positive cadence and award fall back to
// the defaults; a signup bonus of zero is kept as-is (it is a valid "no
// bonus" setting), only negative values are replaced.
func NewLedger(accounts repository.AccountRepository, gen *Generator, cfg Config, logger *slog.Logger) *Ledger {
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}
	if cfg.Award <= 0 {
		cfg.Award = DefaultAward
	}
	if cfg.SignupBonus < 0 {
		cfg.SignupBonus = DefaultSignupBonus
	}
	return &Ledger{
		accounts: accounts,
		gen:      gen,
		cfg:      cfg,
		logger:   logger,
	}
}

// SignupBonus returns the one-time credit granted to a new account whose
// registration carried a valid referral code.
func (l *Ledger) SignupBonus() int64 {
	return l.cfg.SignupBonus
}

// IssueCode performs the one-shot NoCode → CodeIssued transition for the
// given account and returns the shareable registration URL.
//
// The persistence step is conditional on the code column still being unset,
// which closes the race between two concurrent issuance calls: exactly one
// wins, the other gets ErrAlreadyIssued. A generator collision (the code
// value already belongs to someone else) is retried with a fresh code.
func (l *Ledger) IssueCode(ctx context.Context, accountID string) (string, error) {
	account, err := l.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("referral: loading account %s: %w", accountID, err)
	}
	if account.HasReferralCode() {
		return "", apperror.AlreadyIssued(accountID)
	}

	for attempt := 0; attempt < maxIssueRetries; attempt++ {
		code, err := l.gen.Generate()
		if err != nil {
			return "", err
		}

		err = l.accounts.ClaimReferralCode(ctx, accountID, code)
		if errors.Is(err, repository.ErrCodeTaken) {
			l.logger.Warn("generated referral code collided, regenerating",
				slog.String("accountID", accountID),
			)
			continue
		}
		if err != nil {
			// AlreadyIssued here means we lost a concurrent issuance race:
			// the pre-check above saw no code, but another request claimed
			// one before our write landed.
			return "", fmt.Errorf("referral: claiming code for account %s: %w", accountID, err)
		}

		l.logger.Info("referral code issued",
			slog.String("accountID", accountID),
			slog.String("code", code),
		)
		return code, nil
	}

	return "", apperror.Persistence("issue referral code",
		fmt.Errorf("gave up after %d code collisions", maxIssueRetries))
}

// ShareURL builds the fully-qualified registration link for a code.
func (l *Ledger) ShareURL(code string) string {
	return fmt.Sprintf("%s/register?code=%s", strings.TrimRight(l.cfg.BaseURL, "/"), code)
}

// Redeem records that newAccountID registered through the given referral
// code: the code owner's referred list grows by one, their count increments,
// and — only when the post-increment count lands on a cadence multiple — the
// award is credited in the same atomic step.
//
// OPTIMISTIC CONCURRENCY:
// The next state is computed from a snapshot of the referrer and committed
// with a compare-and-swap on the snapshot's version. If another redemption
// committed in between, the CAS fails, and we re-read and recompute. That
// recomputation is what keeps the cadence exact under contention — deciding
// "award or not" from a stale count would either double-pay or skip the
// boundary. Retries are bounded; exhaustion surfaces as ErrTransientConflict.
func (l *Ledger) Redeem(ctx context.Context, code, newAccountID string) (*RedeemResult, error) {
	for attempt := 0; attempt < maxRedeemRetries; attempt++ {
		referrer, err := l.accounts.GetByReferralCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("referral: looking up code: %w", err)
		}

		if referrer.ID == newAccountID {
			return nil, apperror.SelfReferral(newAccountID)
		}

		newCount := referrer.ReferralCount + 1
		newCredit := referrer.CreditBalance
		awarded := newCount%int64(l.cfg.Cadence) == 0
		if awarded {
			newCredit += l.cfg.Award
		}

		err = l.accounts.ApplyRedemption(ctx, repository.RedemptionUpdate{
			ReferrerID:   referrer.ID,
			Version:      referrer.Version,
			NewCount:     newCount,
			NewCredit:    newCredit,
			NewAccountID: newAccountID,
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("referral: recording redemption: %w", err)
		}

		l.logger.Info("referral code redeemed",
			slog.String("referrerID", referrer.ID),
			slog.String("newAccountID", newAccountID),
			slog.Int64("referralCount", newCount),
			slog.Bool("awarded", awarded),
		)
		return &RedeemResult{
			ReferrerID:    referrer.ID,
			ReferralCount: newCount,
			Awarded:       awarded,
		}, nil
	}

	l.logger.Warn("redemption retries exhausted",
		slog.String("code", code),
		slog.String("newAccountID", newAccountID),
	)
	return nil, apperror.TransientConflict("referrer account")
}
