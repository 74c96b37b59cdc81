package handler

// RESPONSE HELPERS:
// Every handler sends JSON through these two functions, so the API has
// exactly one success envelope and one error shape.
//
// Success:  {"error": false, "message": "...", "data": ...}
// Failure:  {"error": "conflict", "message": "an account already exists for ..."}
//
// writeError is the single place where domain error kinds become HTTP
// status codes. The service layer below knows nothing about HTTP; a
// different transport would map the same kinds its own way.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/referral-rewards/internal/apperror"
)

// envelope is the standard success response.
type envelope struct {
	Error   bool   `json:"error"`   // always false on the success path
	Message string `json:"message"` // short human-readable summary
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the standard error format returned by all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "conflict"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader, and WriteHeader before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already gone out — all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeSuccess sends the success envelope.
func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Error: false, Message: message, Data: data})
}

// writeError maps a domain error to an HTTP status code and sends it.
//
// errors.Is walks the wrap chain (services wrap with fmt.Errorf("...: %w")),
// so the mapping works no matter how many layers annotated the error on the
// way up. Anything without a recognized kind becomes an opaque 500 — raw
// error text can leak SQL or file paths and never reaches a client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		kind := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusUnprocessableEntity // 422
			kind = "validation_error"
		case errors.Is(err, apperror.ErrDuplicateEmail):
			status = http.StatusConflict // 409
			kind = "duplicate_email"
		case errors.Is(err, apperror.ErrUnknownAccount):
			status = http.StatusNotFound // 404
			kind = "unknown_account"
		case errors.Is(err, apperror.ErrUnknownCode):
			status = http.StatusBadRequest // 400
			kind = "unknown_code"
		case errors.Is(err, apperror.ErrSelfReferral):
			status = http.StatusBadRequest // 400
			kind = "self_referral"
		case errors.Is(err, apperror.ErrAlreadyIssued):
			status = http.StatusConflict // 409
			kind = "already_issued"
		case errors.Is(err, apperror.ErrBadCredential):
			status = http.StatusUnauthorized // 401
			kind = "bad_credential"
		case errors.Is(err, apperror.ErrTransientConflict):
			status = http.StatusConflict // 409 — safe for the client to retry
			kind = "transient_conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   kind,
			Message: appErr.Message,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
