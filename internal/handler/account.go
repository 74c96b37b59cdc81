// Package handler contains the HTTP layer: request parsing, payload
// validation, and response writing. No business rules live here — every
// handler is a thin translation around one AccountService call.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/referral-rewards/internal/apperror"
	"github.com/sakif/referral-rewards/internal/auth"
	"github.com/sakif/referral-rewards/internal/service"
)

// AccountHandler serves the four public operations:
//
//	POST /api/register  → HandleRegister (referral code via ?code= query param)
//	POST /api/login     → HandleLogin
//	GET  /api/refer     → HandleReferralLink (authenticated)
//	GET  /api/user      → HandleProfile (authenticated)
type AccountHandler struct {
	accounts *service.AccountService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		validate: validator.New(),
		logger:   logger,
	}
}

// credentialsRequest is the payload for both register and login.
//
// The password rule mirrors the public signup form: 3–72 characters,
// letters and digits (72 is bcrypt's input limit). Validation tags are
// declarative — decodeAndValidate turns the first violation into a 422.
type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=3,max=72,alphanum"`
}

// decodeAndValidate decodes the JSON body into req and runs struct
// validation. Returns an apperror the caller passes straight to writeError.
func (h *AccountHandler) decodeAndValidate(r *http.Request, req *credentialsRequest) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			// Report the first failing field; the client fixes one at a time anyway.
			first := verrs[0]
			return apperror.ValidationFailed(first.Field(), "invalid value for field "+first.Field())
		}
		return apperror.ValidationFailed("body", "request validation failed")
	}
	return nil
}

// HandleRegister creates a new account.
//
// HTTP: POST /api/register?code=<referral code>
//
// The referral code rides in the query string, not the body — that is what
// a shared referral link points at, so the front-end can POST the form
// straight to its own URL.
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	code := r.URL.Query().Get("code")

	account, err := h.accounts.Register(r.Context(), req.Email, req.Password, code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "account created", map[string]any{
		"id":            account.ID,
		"email":         account.Email,
		"creditBalance": account.CreditBalance,
	})
}

// HandleLogin authenticates an account and returns a bearer token.
//
// HTTP: POST /api/login
//
// An unknown email and a wrong password both come back as 401 with the same
// message — responding 404 for unknown emails would let anyone probe which
// addresses have accounts.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperror.ErrUnknownAccount) {
			err = apperror.BadCredential()
		}
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "authenticated", map[string]string{
		"token": token,
	})
}

// HandleReferralLink issues the caller's referral code and returns the
// shareable URL. One-shot: a second call answers 409.
//
// HTTP: GET /api/refer  (requires auth)
func (h *AccountHandler) HandleReferralLink(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		// RequireAuth guards this route; reaching here without an identity
		// is a wiring bug, not a client error.
		h.logger.Error("referral link handler reached without authenticated account")
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "valid authentication required",
		})
		return
	}

	url, err := h.accounts.IssueReferralLink(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "referral link created", map[string]string{
		"referralUrl": url,
	})
}

// HandleProfile returns the caller's profile.
//
// HTTP: GET /api/user  (requires auth)
func (h *AccountHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		h.logger.Error("profile handler reached without authenticated account")
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "valid authentication required",
		})
		return
	}

	profile, err := h.accounts.GetProfile(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "profile", profile)
}
