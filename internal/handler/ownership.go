package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/josh-kwaku/banking-transfers/internal/auth"
	"github.com/josh-kwaku/banking-transfers/internal/domain"
)

// actingUser returns the user admitted by the KYC middleware. Handlers behind
// it can rely on a user being present; its absence means the route was wired
// without the gate.
func actingUser(r *http.Request) (*domain.User, *AppError) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, ErrMissingToken
	}
	return u, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}
