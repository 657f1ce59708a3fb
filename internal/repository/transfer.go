package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
)

const transferColumns = `id, user_id, source_account_id, beneficiary_id, amount, currency,
	description, status, required_codes, failed_attempts, blocked, blocked_until,
	debit_transaction_id, version, created_at, updated_at, completed_at, cancelled_at`

const transferCodeColumns = `id, transfer_id, sequence, code_hash, created_at, expires_at, consumed_at`

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts the transfer and every code attached to it.
func (r *TransferRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		t.ID, t.UserID, t.SourceAccountID, t.BeneficiaryID, t.Amount, t.Currency,
		t.Description, t.Status, t.RequiredCodes, t.FailedAttempts, t.Blocked, t.BlockedUntil,
		t.DebitTransactionID, t.Version, t.CreatedAt, t.UpdatedAt, t.CompletedAt, t.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if err := r.saveCodes(ctx, tx, t); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferCodeColumns+` FROM transfer_codes WHERE transfer_id = $1 ORDER BY sequence`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByID: codes: %w", err)
	}
	if t.Codes, err = collectCodes(rows); err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

// GetForUpdate locks the transfer row. Concurrent validations of the same
// transfer queue behind this lock.
func (r *TransferRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transfer, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, id,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+transferCodeColumns+` FROM transfer_codes WHERE transfer_id = $1 ORDER BY sequence`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("GetForUpdate: codes: %w", err)
	}
	if t.Codes, err = collectCodes(rows); err != nil {
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return t, nil
}

// Save writes the mutable transfer fields and upserts its codes. The row must
// still be at t.Version; on success t.Version is advanced.
func (r *TransferRepository) Save(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transfers SET
			status = $1, failed_attempts = $2, blocked = $3, blocked_until = $4,
			debit_transaction_id = $5, version = $6, updated_at = $7,
			completed_at = $8, cancelled_at = $9
		WHERE id = $10 AND version = $11`,
		t.Status, t.FailedAttempts, t.Blocked, t.BlockedUntil,
		t.DebitTransactionID, t.Version+1, t.UpdatedAt,
		t.CompletedAt, t.CancelledAt,
		t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Save: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Save: %w", domain.ErrConcurrencyConflict)
	}

	if err := r.saveCodes(ctx, tx, t); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	t.Version++
	return nil
}

func (r *TransferRepository) saveCodes(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error {
	for _, c := range t.Codes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transfer_codes (`+transferCodeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET consumed_at = EXCLUDED.consumed_at`,
			c.ID, c.TransferID, c.Sequence, c.Hash, c.CreatedAt, c.ExpiresAt, c.ConsumedAt,
		)
		if err != nil {
			return fmt.Errorf("saveCodes: %w", err)
		}
	}
	return nil
}

func collectCodes(rows *sql.Rows) ([]domain.TransferCode, error) {
	defer rows.Close()

	var codes []domain.TransferCode
	for rows.Next() {
		var c domain.TransferCode
		if err := rows.Scan(&c.ID, &c.TransferID, &c.Sequence, &c.Hash, &c.CreatedAt, &c.ExpiresAt, &c.ConsumedAt); err != nil {
			return nil, fmt.Errorf("collectCodes: scan: %w", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collectCodes: rows: %w", err)
	}
	return codes, nil
}

func scanTransfer(s scanner) (*domain.Transfer, error) {
	var t domain.Transfer
	err := s.Scan(
		&t.ID, &t.UserID, &t.SourceAccountID, &t.BeneficiaryID, &t.Amount, &t.Currency,
		&t.Description, &t.Status, &t.RequiredCodes, &t.FailedAttempts, &t.Blocked, &t.BlockedUntil,
		&t.DebitTransactionID, &t.Version, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &t.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
