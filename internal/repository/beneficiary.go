package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
)

const beneficiaryColumns = `id, user_id, account_name, iban, bank_name, currency, created_at`

type BeneficiaryRepository struct {
	db *sql.DB
}

func NewBeneficiaryRepository(db *sql.DB) *BeneficiaryRepository {
	return &BeneficiaryRepository{db: db}
}

func (r *BeneficiaryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	err := r.db.QueryRowContext(ctx,
		`SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = $1`, id,
	).Scan(&b.ID, &b.UserID, &b.AccountName, &b.IBAN, &b.BankName, &b.Currency, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &b, nil
}
