// Package apperror defines the closed set of error kinds the core can produce.
//
// ERROR KINDS, NOT STATUS CODES:
// The service layer never knows about HTTP. It returns one of the sentinel
// errors below (wrapped in an *AppError carrying a human-readable message),
// and the HTTP layer translates kinds to status codes in exactly one place
// (handler/response.go). A gRPC or CLI front-end could map the same kinds
// differently without touching the core.
//
// Matching works through the standard errors package:
//
//	if errors.Is(err, apperror.ErrDuplicateEmail) { ... }
//
// because AppError implements Unwrap() and every constructor wires the
// matching sentinel into Err.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors — one per error kind the core can surface.
var (
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrUnknownCode       = errors.New("unknown referral code")
	ErrSelfReferral      = errors.New("self referral")
	ErrAlreadyIssued     = errors.New("referral code already issued")
	ErrBadCredential     = errors.New("bad credential")
	ErrTransientConflict = errors.New("transient conflict")
	ErrPersistence       = errors.New("persistence failure")
)

// AppError pairs an error kind with a human-readable message.
type AppError struct {
	Err     error  // one of the sentinels above
	Message string // human-readable error message
	Field   string // optional: request field causing a validation error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ValidationFailed reports a malformed or out-of-range input field.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// DuplicateEmail reports a registration against an email that is already taken.
func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: fmt.Sprintf("an account already exists for %s", email),
	}
}

// UnknownAccount reports a lookup for an account id that does not exist.
func UnknownAccount(id string) *AppError {
	return &AppError{
		Err:     ErrUnknownAccount,
		Message: fmt.Sprintf("no account with id %s", id),
	}
}

// UnknownEmail reports a lookup for an email with no matching account.
// Same kind as UnknownAccount — only the message differs.
func UnknownEmail(email string) *AppError {
	return &AppError{
		Err:     ErrUnknownAccount,
		Message: fmt.Sprintf("no account registered for %s", email),
	}
}

// UnknownCode reports a redemption against a referral code nobody owns.
func UnknownCode(code string) *AppError {
	return &AppError{
		Err:     ErrUnknownCode,
		Message: fmt.Sprintf("referral code %q does not exist", code),
	}
}

// SelfReferral reports an account trying to redeem its own referral code.
func SelfReferral(id string) *AppError {
	return &AppError{
		Err:     ErrSelfReferral,
		Message: fmt.Sprintf("account %s cannot redeem its own referral code", id),
	}
}

// AlreadyIssued reports a second issuance attempt for an account that
// already holds a referral code. Issuance is a one-shot transition.
func AlreadyIssued(id string) *AppError {
	return &AppError{
		Err:     ErrAlreadyIssued,
		Message: fmt.Sprintf("account %s has already created a referral code", id),
	}
}

// BadCredential reports a failed secret verification.
// The message is deliberately vague — never echo which part was wrong.
func BadCredential() *AppError {
	return &AppError{
		Err:     ErrBadCredential,
		Message: "invalid email or password",
	}
}

// TransientConflict reports an optimistic-concurrency update that exhausted
// its retries. The request failed but can be safely retried by the caller.
func TransientConflict(resource string) *AppError {
	return &AppError{
		Err:     ErrTransientConflict,
		Message: fmt.Sprintf("concurrent updates to %s, please retry", resource),
	}
}

// Persistence wraps an unexpected store failure (unreachable, write rejected
// for reasons other than the typed outcomes above).
func Persistence(op string, err error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: fmt.Sprintf("storage failure during %s: %v", op, err),
	}
}
