// Package repository defines the storage contract the rest of the
// application programs against.
//
// The interface is deliberately narrow and typed: every outcome a caller
// needs to branch on (duplicate email, missing account, lost CAS race) is a
// distinct error, so no layer above this one ever sniffs driver-specific
// error codes.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/referral-rewards/internal/model"
)

// Store-internal sentinel errors. These signal retryable races to the
// referral ledger and never escape the core — the ledger either retries or
// converts them to an apperror kind.
var (
	// ErrVersionConflict means ApplyRedemption found the account's version
	// changed since it was read. The caller re-reads and retries.
	ErrVersionConflict = errors.New("repository: account version changed")

	// ErrCodeTaken means ClaimReferralCode lost the global uniqueness check
	// on the code value itself (generator collision). The caller generates a
	// fresh code and retries.
	ErrCodeTaken = errors.New("repository: referral code already in use")
)

// RedemptionUpdate describes one redemption applied to a referrer, computed
// by the ledger from a snapshot of the account at Version.
//
// The store must commit NewCount, NewCredit, and the append of NewAccountID
// as a single atomic step, and only if the referrer's version still equals
// Version (compare-and-swap). This is what makes concurrent redemptions
// lose no increments and never double-award at a cadence boundary.
type RedemptionUpdate struct {
	ReferrerID   string
	Version      int64 // version the snapshot was read at
	NewCount     int64
	NewCredit    int64
	NewAccountID string // account that redeemed the code; appended to the referred list
}

// AccountRepository is the durable account store.
//
// Error contract (all methods may additionally return wrapped
// apperror.Persistence for unexpected store failures):
//
//   - Create: apperror.ErrDuplicateEmail if the normalized email is taken.
//     The UNIQUE constraint at write time is the authoritative signal — no
//     check-then-insert.
//   - GetByID / GetByEmail: apperror.ErrUnknownAccount if absent.
//   - GetByReferralCode: apperror.ErrUnknownCode if no account owns the code.
//   - ClaimReferralCode: conditional write, succeeds only while the
//     account's code is still unset. apperror.ErrAlreadyIssued if the
//     account already holds a code (including losing a concurrent claim),
//     apperror.ErrUnknownAccount if the account is missing, ErrCodeTaken if
//     another account already owns this code value.
//   - ApplyRedemption: ErrVersionConflict if the CAS guard fails.
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*model.Account, error)
	ClaimReferralCode(ctx context.Context, accountID, code string) error
	ApplyRedemption(ctx context.Context, upd RedemptionUpdate) error
	ReferredAccountIDs(ctx context.Context, accountID string) ([]string, error)
}
