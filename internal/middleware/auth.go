package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/banking-transfers/internal/auth"
	"github.com/josh-kwaku/banking-transfers/internal/handler"
)

// Auth validates the bearer token and binds the caller's user and session to
// the request context. Tokens without a session id are refused, since the
// pending credit transfer is scoped to the session.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, appErr := bearerToken(r)
			if appErr != nil {
				handler.RespondAppError(w, appErr, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithUserID(r.Context(), claims.UserID)
			ctx = auth.ContextWithSessionID(ctx, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, *handler.AppError) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", handler.ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", handler.ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}
