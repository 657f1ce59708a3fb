package transfer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
	"github.com/josh-kwaku/banking-transfers/internal/metrics"
	"github.com/josh-kwaku/banking-transfers/internal/verification"
)

const pendingCreditKey = "pending_credit_transfer"

// Session is the slice of the transient store scoped to one user session.
type Session interface {
	Get(ctx context.Context, name string) ([]byte, bool, error)
	Set(ctx context.Context, name string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, name string) error
}

// PendingCreditTransfer is the authorization record held in the session
// between initiate and execute. The code is kept only as a hash.
type PendingCreditTransfer struct {
	SubAccountID uuid.UUID       `json:"sub_account_id"`
	Amount       decimal.Decimal `json:"amount"`
	CodeHash     string          `json:"code_hash"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

func (p *PendingCreditTransfer) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// CreditChallenge is what InitiateTransfer hands back. Code is for logs and
// tests and is never serialized.
type CreditChallenge struct {
	Code         string          `json:"-"`
	SubAccountID uuid.UUID       `json:"sub_account_id"`
	Amount       decimal.Decimal `json:"amount"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

type CreditTransferResult struct {
	Debit           *domain.Transaction
	Credit          *domain.Transaction
	NewBalance      decimal.Decimal
	RemainingCredit decimal.Decimal
}

// GetSubAccount returns the sub-account if it belongs to user.
func (m *Manager) GetSubAccount(ctx context.Context, user *domain.User, subAccountID uuid.UUID) (*domain.SubAccountCredit, *domain.Account, error) {
	sub, err := m.repos.SubAccounts.GetByID(ctx, subAccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("GetSubAccount: %w", err)
	}
	acct, err := m.repos.Accounts.GetByID(ctx, sub.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("GetSubAccount: %w", err)
	}
	if acct.UserID != user.ID {
		return nil, nil, fmt.Errorf("GetSubAccount: %w", domain.ErrAccessDenied)
	}
	return sub, acct, nil
}

// InitiateTransfer issues a code for moving amount from the sub-account to
// its main account. Any earlier pending record in the session is replaced.
// If the code cannot be handed to the dispatcher nothing stays pending.
func (m *Manager) InitiateTransfer(ctx context.Context, sess Session, subAccountID uuid.UUID, amount decimal.Decimal, user *domain.User) (*CreditChallenge, error) {
	log := logging.FromContext(ctx)

	sub, acct, err := m.GetSubAccount(ctx, user, subAccountID)
	if err != nil {
		return nil, fmt.Errorf("InitiateTransfer: %w", err)
	}

	if fields := ValidateTransferAmount(sub, amount.String()); len(fields) > 0 {
		verr := &domain.ValidationError{Fields: fields}
		if fields[0].Code == domain.FieldCodeInsufficient {
			return nil, fmt.Errorf("InitiateTransfer: %w: %w", domain.ErrInsufficientFunds, verr)
		}
		return nil, fmt.Errorf("InitiateTransfer: %w", verr)
	}

	code, hash, err := m.codes.Issue()
	if err != nil {
		return nil, fmt.Errorf("InitiateTransfer: %w", err)
	}

	now := m.now()
	record := PendingCreditTransfer{
		SubAccountID: sub.ID,
		Amount:       amount,
		CodeHash:     hash,
		ExpiresAt:    now.Add(m.opts.CreditCodeTTL),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("InitiateTransfer: marshal pending: %w", err)
	}

	// Kept past ExpiresAt so a late submission reads as expired, not missing.
	if err := sess.Set(ctx, pendingCreditKey, data, 2*m.opts.CreditCodeTTL); err != nil {
		return nil, fmt.Errorf("InitiateTransfer: store pending: %w", err)
	}

	err = m.dispatcher.Send(ctx, verification.Message{
		UserID:             user.ID,
		RecipientEmail:     user.Email,
		RecipientName:      user.Name,
		Code:               code,
		Amount:             amount,
		SourceAccountLabel: acct.Label,
		Flow:               verification.FlowCreditToMain,
		ExpiresAt:          record.ExpiresAt,
	})
	if err != nil {
		if rmErr := sess.Remove(ctx, pendingCreditKey); rmErr != nil {
			log.Error("failed to drop undelivered pending transfer", "error", rmErr)
		}
		return nil, fmt.Errorf("InitiateTransfer: %w: %w", domain.ErrDispatchFailed, err)
	}

	log.Info("credit transfer initiated",
		"sub_account_id", sub.ID,
		"amount", amount.StringFixed(2),
		"expires_at", record.ExpiresAt,
	)

	return &CreditChallenge{
		Code:         code,
		SubAccountID: sub.ID,
		Amount:       amount,
		ExpiresAt:    record.ExpiresAt,
	}, nil
}

// VerifyTransferCode checks submitted against the pending record. An expired
// record is cleared; a mismatch leaves it in place for another try. On a
// match the record is returned and stays pending until
// ClearPendingCreditTransfer.
//
// There is no attempt limit here, unlike beneficiary transfers.
func (m *Manager) VerifyTransferCode(ctx context.Context, sess Session, submitted string) (*PendingCreditTransfer, error) {
	log := logging.FromContext(ctx)
	flow := string(verification.FlowCreditToMain)

	data, ok, err := sess.Get(ctx, pendingCreditKey)
	if err != nil {
		return nil, fmt.Errorf("VerifyTransferCode: %w", err)
	}
	if !ok {
		metrics.CodeVerifications.WithLabelValues(flow, metrics.OutcomeNoPending).Inc()
		return nil, fmt.Errorf("VerifyTransferCode: %w", domain.ErrNoPendingTransfer)
	}

	var record PendingCreditTransfer
	if err := json.Unmarshal(data, &record); err != nil {
		log.Error("discarding unreadable pending transfer", "error", err)
		if rmErr := sess.Remove(ctx, pendingCreditKey); rmErr != nil {
			log.Error("failed to drop unreadable pending transfer", "error", rmErr)
		}
		metrics.CodeVerifications.WithLabelValues(flow, metrics.OutcomeNoPending).Inc()
		return nil, fmt.Errorf("VerifyTransferCode: %w", domain.ErrNoPendingTransfer)
	}

	if record.IsExpired(m.now()) {
		if err := sess.Remove(ctx, pendingCreditKey); err != nil {
			return nil, fmt.Errorf("VerifyTransferCode: clear expired: %w", err)
		}
		metrics.CodeVerifications.WithLabelValues(flow, metrics.OutcomeExpired).Inc()
		return nil, fmt.Errorf("VerifyTransferCode: %w", domain.ErrAuthorizationExpired)
	}

	if !m.codes.Matches(record.CodeHash, submitted) {
		log.Warn("credit transfer code rejected", "sub_account_id", record.SubAccountID)
		metrics.CodeVerifications.WithLabelValues(flow, metrics.OutcomeInvalid).Inc()
		return nil, fmt.Errorf("VerifyTransferCode: %w", domain.ErrAuthorizationInvalid)
	}

	metrics.CodeVerifications.WithLabelValues(flow, metrics.OutcomeSuccess).Inc()
	return &record, nil
}

// ExecuteCreditTransfer sweeps amount from the sub-account into its main
// account. Amounts the ledger cannot store exactly are refused up front.
// Funds are re-checked under row locks; on any failure nothing is written.
func (m *Manager) ExecuteCreditTransfer(ctx context.Context, subAccountID uuid.UUID, amount decimal.Decimal, user *domain.User) (*CreditTransferResult, error) {
	if _, fe := ParseAmount(amount.String()); fe != nil {
		return nil, fmt.Errorf("ExecuteCreditTransfer: %w: %w", domain.ErrInvalidAmount, &domain.ValidationError{Fields: []domain.FieldError{*fe}})
	}

	var result *CreditTransferResult
	err := m.withRetry(ctx, verification.FlowCreditToMain, func(tx *sql.Tx) error {
		r, err := m.executeCredit(ctx, tx, subAccountID, amount, user)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	metrics.Executions.WithLabelValues(string(verification.FlowCreditToMain), executionOutcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("ExecuteCreditTransfer: %w", err)
	}

	logging.FromContext(ctx).Info("credit transfer executed",
		"sub_account_id", subAccountID,
		"account_id", result.Credit.AccountID,
		"amount", amount.StringFixed(2),
		"debit_transaction_id", result.Debit.ID,
		"credit_transaction_id", result.Credit.ID,
	)
	return result, nil
}

func (m *Manager) executeCredit(ctx context.Context, tx *sql.Tx, subAccountID uuid.UUID, amount decimal.Decimal, user *domain.User) (*CreditTransferResult, error) {
	sub, err := m.repos.SubAccounts.GetForUpdate(ctx, tx, subAccountID)
	if err != nil {
		return nil, fmt.Errorf("executeCredit: %w", err)
	}
	acct, err := m.repos.Accounts.GetForUpdate(ctx, tx, sub.AccountID)
	if err != nil {
		return nil, fmt.Errorf("executeCredit: %w", err)
	}
	if acct.UserID != user.ID {
		return nil, fmt.Errorf("executeCredit: %w", domain.ErrAccessDenied)
	}

	if err := sub.Debit(amount); err != nil {
		return nil, fmt.Errorf("executeCredit: sub-account: %w", err)
	}
	if err := acct.Credit(amount); err != nil {
		return nil, fmt.Errorf("executeCredit: account: %w", err)
	}

	now := m.now()
	newBalance := acct.Balance
	subID := sub.ID
	debit, credit := domain.NewTransferPair(domain.PairSpec{
		Amount:      amount,
		InitiatedBy: user.ID,
		Linkage: domain.TransferLinkage{
			TransferType:       domain.TransferTypeCreditToMain,
			SubAccountCreditID: &subID,
		},
		Debit: domain.LegSpec{
			AccountID:   acct.ID,
			Description: domain.DescriptionCreditTransferOut,
		},
		Credit: domain.LegSpec{
			AccountID:    acct.ID,
			Description:  domain.DescriptionCreditTransferIn,
			BalanceAfter: &newBalance,
		},
		At: now,
	})

	if err := m.repos.Transactions.Create(ctx, tx, debit); err != nil {
		return nil, fmt.Errorf("executeCredit: debit leg: %w", err)
	}
	if err := m.repos.Transactions.Create(ctx, tx, credit); err != nil {
		return nil, fmt.Errorf("executeCredit: credit leg: %w", err)
	}
	if err := m.repos.SubAccounts.UpdateAmount(ctx, tx, sub.ID, sub.Amount, sub.Version+1, now); err != nil {
		return nil, fmt.Errorf("executeCredit: %w", err)
	}
	if err := m.repos.Accounts.UpdateBalance(ctx, tx, acct.ID, newBalance, acct.Version+1); err != nil {
		return nil, fmt.Errorf("executeCredit: %w", err)
	}

	return &CreditTransferResult{
		Debit:           debit,
		Credit:          credit,
		NewBalance:      newBalance,
		RemainingCredit: sub.Amount,
	}, nil
}

// ClearPendingCreditTransfer drops the pending record. Clearing an empty
// session is not an error.
func (m *Manager) ClearPendingCreditTransfer(ctx context.Context, sess Session) error {
	if err := sess.Remove(ctx, pendingCreditKey); err != nil {
		return fmt.Errorf("ClearPendingCreditTransfer: %w", err)
	}
	return nil
}

// ConfirmCreditTransfer is the full second step of the flow: verify the
// code, execute the pending transfer and clear the record. The record is
// left in place if execution fails.
func (m *Manager) ConfirmCreditTransfer(ctx context.Context, sess Session, submitted string, user *domain.User) (*CreditTransferResult, error) {
	pending, err := m.VerifyTransferCode(ctx, sess, submitted)
	if err != nil {
		return nil, fmt.Errorf("ConfirmCreditTransfer: %w", err)
	}

	result, err := m.ExecuteCreditTransfer(ctx, pending.SubAccountID, pending.Amount, user)
	if err != nil {
		return nil, fmt.Errorf("ConfirmCreditTransfer: %w", err)
	}

	if err := m.ClearPendingCreditTransfer(ctx, sess); err != nil {
		logging.FromContext(ctx).Error("failed to clear pending credit transfer", "error", err)
	}
	return result, nil
}
