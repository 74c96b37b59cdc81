// Package model defines the data structures used throughout the application.
package model

import "time"

// Account represents a registered user and their referral state.
//
// WHY ReferralCode string (not *string)?
// The column is NULL until the account creates a code, but in Go an empty
// string is a perfectly good "not issued yet" zero value — the repository
// maps NULL ↔ "" at the scan boundary. No code is ever the empty string
// (the generator always produces 8 characters), so there's no ambiguity.
//
// WHY a Version field?
// Redemptions against the same referrer race with each other. Every write to
// the referral counters goes through a compare-and-swap on Version (see
// repository.AccountRepository.ApplyRedemption), so two concurrent
// redemptions can never both commit against the same snapshot. The version
// is internal plumbing — it is excluded from JSON and from ProfileView.
type Account struct {
	ID            string    `json:"id"            db:"id"`
	Email         string    `json:"email"         db:"email"`          // normalized: lower-cased, trimmed
	SecretHash    string    `json:"-"             db:"secret_hash"`    // bcrypt hash, never serialized
	ReferralCode  string    `json:"referralCode"  db:"referral_code"`  // "" until issued; immutable afterwards
	ReferralCount int64     `json:"referralCount" db:"referral_count"` // equals the number of rows in account_referrals
	CreditBalance int64     `json:"creditBalance" db:"credit_balance"` // whole currency units, never decremented
	Version       int64     `json:"-"             db:"version"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}

// HasReferralCode reports whether the one-shot NoCode → CodeIssued transition
// has already fired for this account.
func (a *Account) HasReferralCode() bool {
	return a.ReferralCode != ""
}

// ProfileView is the outward-facing projection of an Account.
//
// It exposes everything a user may see about themselves and nothing they may
// not: the secret hash and the concurrency version never leave the service
// layer.
type ProfileView struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email"`
	ReferralCode       string   `json:"referralCode,omitempty"` // omitted until issued
	ReferralCount      int64    `json:"referralCount"`
	CreditBalance      int64    `json:"creditBalance"`
	ReferredAccountIDs []string `json:"referredAccountIds"` // redemption order, append-only
}
