package kyc

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
)

type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Gate decides whether a user may reach banking operations at all.
type Gate struct {
	users userRepo
}

func NewGate(users userRepo) *Gate {
	return &Gate{users: users}
}

func (g *Gate) CanUserAccessBanking(u *domain.User) bool {
	return u != nil && u.Status == domain.UserStatusActive && u.KYCStatus == domain.KYCStatusApproved
}

// Admit loads the user and returns it only if the gate lets them through.
func (g *Gate) Admit(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Admit: %w", err)
	}
	if !g.CanUserAccessBanking(u) {
		return nil, fmt.Errorf("Admit: %w", domain.ErrAccessDenied)
	}
	return u, nil
}
