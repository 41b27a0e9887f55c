package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/genrelay/internal/api/shared"
	"github.com/phrazzld/genrelay/internal/service/auth"
)

// AdminAuth protects the credential administration routes with an admin
// bearer token.
type AdminAuth struct {
	tokens auth.TokenService
}

// NewAdminAuth creates an AdminAuth backed by tokens.
func NewAdminAuth(tokens auth.TokenService) *AdminAuth {
	return &AdminAuth{tokens: tokens}
}

// Authenticate validates the Authorization header and records the token
// subject on the request context.
func (m *AdminAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.tokens.ValidateToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Token expired", err)
			case errors.Is(err, auth.ErrInsufficientRole):
				shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Admin role required", err,
					shared.WithElevatedLogLevel())
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid token", err,
					shared.WithElevatedLogLevel())
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
					"Authentication error", err)
			}
			return
		}

		ctx := shared.SetAdminSubject(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
