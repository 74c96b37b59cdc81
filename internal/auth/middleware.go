package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// context.WithValue keys are compared by type AND value — using a
// package-private type means no other package can read or shadow the
// account ID we stash in the request context.
type contextKey string

const accountIDKey contextKey = "accountID"

// RequireAuth enforces authentication on protected routes.
//
// It reads the bearer token from the Authorization header, validates it,
// and stores the account ID in the request context. Missing or invalid
// tokens end the chain with 401 Unauthorized.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := extractAccountID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext retrieves the authenticated account's ID from the
// request context.
//
// Returns ("", false) if the request is anonymous. Handlers behind
// RequireAuth can rely on ok being true.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}

// extractAccountID reads "Authorization: Bearer <token>" and validates it.
func extractAccountID(r *http.Request, tokens *TokenService) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("auth: missing Authorization header")
	}

	// Scheme comparison is case-insensitive per RFC 9110.
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		if token, ok = strings.CutPrefix(header, "bearer "); !ok {
			return "", errors.New("auth: Authorization header is not a bearer token")
		}
	}

	return tokens.Validate(strings.TrimSpace(token))
}
