package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
)

const subAccountColumns = `id, account_id, amount, version, created_at, updated_at`

type SubAccountCreditRepository struct {
	db *sql.DB
}

func NewSubAccountCreditRepository(db *sql.DB) *SubAccountCreditRepository {
	return &SubAccountCreditRepository{db: db}
}

func (r *SubAccountCreditRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SubAccountCredit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subAccountColumns+` FROM sub_account_credits WHERE id = $1`, id,
	)
	s, err := scanSubAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return s, nil
}

func (r *SubAccountCreditRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.SubAccountCredit, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+subAccountColumns+` FROM sub_account_credits WHERE id = $1 FOR UPDATE`, id,
	)
	s, err := scanSubAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return s, nil
}

func (r *SubAccountCreditRepository) UpdateAmount(ctx context.Context, tx *sql.Tx, id uuid.UUID, newAmount decimal.Decimal, newVersion int64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sub_account_credits SET amount = $1, version = $2, updated_at = $3
		WHERE id = $4 AND version = $5`,
		newAmount, newVersion, at, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateAmount: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateAmount: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateAmount: %w", domain.ErrConcurrencyConflict)
	}
	return nil
}

func scanSubAccount(s scanner) (*domain.SubAccountCredit, error) {
	var sa domain.SubAccountCredit
	err := s.Scan(&sa.ID, &sa.AccountID, &sa.Amount, &sa.Version, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}
