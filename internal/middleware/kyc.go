package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/banking-transfers/internal/auth"
	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/handler"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
)

type bankingGate interface {
	Admit(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// KYC refuses users who may not use banking features. Admitted users are
// loaded once here and handed to handlers through the context.
func KYC(gate bankingGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			user, err := gate.Admit(r.Context(), userID)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrAccessDenied):
				logging.FromContext(r.Context()).Info("banking access refused")
				handler.RespondAppError(w, handler.ErrBankingAccess, nil)
				return
			case errors.Is(err, domain.ErrNotFound):
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			default:
				logging.FromContext(r.Context()).Error("kyc lookup failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
		})
	}
}
