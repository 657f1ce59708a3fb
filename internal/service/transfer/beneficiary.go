package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
	"github.com/josh-kwaku/banking-transfers/internal/metrics"
	"github.com/josh-kwaku/banking-transfers/internal/verification"
)

type BeneficiaryTransferRequest struct {
	SourceAccountID uuid.UUID
	BeneficiaryID   uuid.UUID
	Amount          decimal.Decimal
	Description     string
}

func (m *Manager) requiredCodes(amount decimal.Decimal) int {
	if m.opts.SecondCodeThreshold.IsPositive() && amount.GreaterThanOrEqual(m.opts.SecondCodeThreshold) {
		return 2
	}
	return 1
}

// InitiateBeneficiaryTransfer creates a pending transfer with its first code
// and dispatches that code. The transfer is only persisted if the dispatcher
// accepted the code.
func (m *Manager) InitiateBeneficiaryTransfer(ctx context.Context, user *domain.User, req BeneficiaryTransferRequest) (*domain.Transfer, error) {
	if _, fe := ParseAmount(req.Amount.String()); fe != nil {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: %w", &domain.ValidationError{Fields: []domain.FieldError{*fe}})
	}

	acct, err := m.repos.Accounts.GetByID(ctx, req.SourceAccountID)
	if err != nil {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: source: %w", err)
	}
	if acct.UserID != user.ID || acct.AccountType != domain.AccountTypeUser {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: source: %w", domain.ErrAccessDenied)
	}
	if err := acct.CheckActive(); err != nil {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: source: %w", err)
	}

	ben, err := m.repos.Beneficiaries.GetByID(ctx, req.BeneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: beneficiary: %w", err)
	}
	if ben.UserID != user.ID {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: beneficiary: %w", domain.ErrAccessDenied)
	}
	if ben.Currency != acct.Currency {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: %w", domain.ErrCurrencyMismatch)
	}

	if req.Amount.GreaterThan(acct.Available()) {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: %w", domain.ErrInsufficientFunds)
	}

	t, err := domain.NewTransfer(user.ID, acct.ID, ben.ID, req.Amount, acct.Currency, req.Description, m.requiredCodes(req.Amount), m.now())
	if err != nil {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: %w", err)
	}

	err = m.uow.WithTx(ctx, func(tx *sql.Tx) error {
		code, codeErr := m.attachCode(t)
		if codeErr != nil {
			return codeErr
		}
		if err := m.repos.Transfers.Create(ctx, tx, t); err != nil {
			return err
		}
		if err := m.recordEvent(ctx, tx, t.ID, domain.TransferEventCreated, user.ID, map[string]any{
			"amount":         t.Amount.StringFixed(2),
			"currency":       t.Currency,
			"required_codes": t.RequiredCodes,
		}); err != nil {
			return err
		}
		if err := m.recordCodeIssued(ctx, tx, t, user); err != nil {
			return err
		}
		return m.sendCode(ctx, t, user, acct.Label, code)
	})
	if err != nil {
		return nil, fmt.Errorf("InitiateBeneficiaryTransfer: %w", err)
	}

	logging.FromContext(ctx).Info("beneficiary transfer initiated",
		"transfer_id", t.ID,
		"source_account", acct.ID,
		"beneficiary_id", ben.ID,
		"amount", t.Amount.StringFixed(2),
		"required_codes", t.RequiredCodes,
	)
	return t, nil
}

// attachCode generates a code, attaches its hash to t and returns the plain value.
func (m *Manager) attachCode(t *domain.Transfer) (string, error) {
	code, hash, err := m.codes.Issue()
	if err != nil {
		return "", fmt.Errorf("attachCode: %w", err)
	}
	if _, err := t.AttachCode(hash, m.opts.TransferCodeTTL, m.now()); err != nil {
		return "", fmt.Errorf("attachCode: %w", err)
	}
	return code, nil
}

// recordCodeIssued writes the code_issued event for the newest code of t.
func (m *Manager) recordCodeIssued(ctx context.Context, tx *sql.Tx, t *domain.Transfer, user *domain.User) error {
	latest := t.Codes[len(t.Codes)-1]
	if err := m.recordEvent(ctx, tx, t.ID, domain.TransferEventCodeIssued, user.ID, map[string]any{
		"sequence":   latest.Sequence,
		"expires_at": latest.ExpiresAt,
	}); err != nil {
		return fmt.Errorf("recordCodeIssued: %w", err)
	}
	return nil
}

// sendCode dispatches the newest code of t. It runs as the last step of a
// unit of work, after every write, so a conflict retry never re-sends. A
// dispatch failure rolls the unit of work back.
func (m *Manager) sendCode(ctx context.Context, t *domain.Transfer, user *domain.User, sourceLabel, code string) error {
	latest := t.Codes[len(t.Codes)-1]
	err := m.dispatcher.Send(ctx, verification.Message{
		UserID:             user.ID,
		RecipientEmail:     user.Email,
		RecipientName:      user.Name,
		Code:               code,
		Amount:             t.Amount,
		SourceAccountLabel: sourceLabel,
		Flow:               verification.FlowBeneficiary,
		ExpiresAt:          latest.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("sendCode: %w: %w", domain.ErrDispatchFailed, err)
	}
	return nil
}

func (m *Manager) GetTransfer(ctx context.Context, user *domain.User, transferID uuid.UUID) (*domain.Transfer, error) {
	t, err := m.repos.Transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("GetTransfer: %w", err)
	}
	if t.UserID != user.ID {
		return nil, fmt.Errorf("GetTransfer: %w", domain.ErrAccessDenied)
	}
	return t, nil
}

// lockOwnedTransfer locks the transfer row and checks that user owns it.
func (m *Manager) lockOwnedTransfer(ctx context.Context, tx *sql.Tx, user *domain.User, transferID uuid.UUID) (*domain.Transfer, error) {
	t, err := m.repos.Transfers.GetForUpdate(ctx, tx, transferID)
	if err != nil {
		return nil, fmt.Errorf("lockOwnedTransfer: %w", err)
	}
	if t.UserID != user.ID {
		return nil, fmt.Errorf("lockOwnedTransfer: %w", domain.ErrAccessDenied)
	}
	return t, nil
}

// ValidateTransferCode submits a code for the transfer. A correct code is
// consumed; if it was the last one the chain requires, the ledger mutation
// runs in the same unit of work. Rejected codes are counted and committed
// even though the call returns an error. The transfer row lock makes
// concurrent validations queue, so the ledger mutation happens at most once.
func (m *Manager) ValidateTransferCode(ctx context.Context, user *domain.User, transferID uuid.UUID, submitted string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)
	flow := string(verification.FlowBeneficiary)

	var (
		t         *domain.Transfer
		outcome   error
		completed bool
	)
	err := m.withRetry(ctx, verification.FlowBeneficiary, func(tx *sql.Tx) error {
		outcome, completed = nil, false

		var err error
		t, err = m.lockOwnedTransfer(ctx, tx, user, transferID)
		if err != nil {
			return err
		}

		now := m.now()
		final, submitErr := t.SubmitCode(now, m.opts.Lockout, func(hash string) bool {
			return m.codes.Matches(hash, submitted)
		})

		switch {
		case submitErr == nil:
			// accepted, handled below
		case errors.Is(submitErr, domain.ErrTransferTerminal):
			return submitErr
		case errors.Is(submitErr, domain.ErrAuthorizationInvalid):
			outcome = submitErr
			if err := m.recordEvent(ctx, tx, t.ID, domain.TransferEventCodeRejected, user.ID, map[string]any{
				"failed_attempts": t.FailedAttempts,
			}); err != nil {
				return err
			}
			if errors.Is(submitErr, domain.ErrTransferBlocked) {
				if err := m.recordEvent(ctx, tx, t.ID, domain.TransferEventBlocked, user.ID, map[string]any{
					"blocked_until": t.BlockedUntil,
				}); err != nil {
					return err
				}
			}
			return m.repos.Transfers.Save(ctx, tx, t)
		default:
			// Expired or still blocked. Saving keeps a lapsed block lifted.
			outcome = submitErr
			return m.repos.Transfers.Save(ctx, tx, t)
		}

		if err := m.recordEvent(ctx, tx, t.ID, domain.TransferEventCodeAccepted, user.ID, map[string]any{
			"consumed": t.ConsumedCodes(),
			"required": t.RequiredCodes,
		}); err != nil {
			return err
		}

		if !final {
			src, err := m.repos.Accounts.GetByID(ctx, t.SourceAccountID)
			if err != nil {
				return err
			}
			code, err := m.attachCode(t)
			if err != nil {
				return err
			}
			if err := m.recordCodeIssued(ctx, tx, t, user); err != nil {
				return err
			}
			if err := m.repos.Transfers.Save(ctx, tx, t); err != nil {
				return err
			}
			return m.sendCode(ctx, t, user, src.Label, code)
		}

		debit, err := m.completeBeneficiaryTransfer(ctx, tx, t, user)
		if err != nil {
			return err
		}
		if err := t.Complete(debit.ID, now); err != nil {
			return err
		}
		if err := m.repos.Transfers.Save(ctx, tx, t); err != nil {
			return err
		}
		completed = true
		return m.recordEvent(ctx, tx, t.ID, domain.TransferEventCompleted, user.ID, map[string]any{
			"debit_transaction_id": debit.ID,
		})
	})

	metrics.CodeVerifications.WithLabelValues(flow, verificationOutcome(err, outcome)).Inc()
	if completed || executionAttempted(err) {
		metrics.Executions.WithLabelValues(flow, executionOutcome(err)).Inc()
	}

	if err != nil {
		return nil, fmt.Errorf("ValidateTransferCode: %w", err)
	}
	if outcome != nil {
		log.Warn("transfer code not accepted", "transfer_id", transferID, "error", outcome)
		return t, fmt.Errorf("ValidateTransferCode: %w", outcome)
	}

	if completed {
		log.Info("beneficiary transfer completed",
			"transfer_id", t.ID,
			"amount", t.Amount.StringFixed(2),
			"debit_transaction_id", t.DebitTransactionID,
		)
	}
	return t, nil
}

// completeBeneficiaryTransfer moves the transfer amount from the source
// account to the clearing account for its currency.
func (m *Manager) completeBeneficiaryTransfer(ctx context.Context, tx *sql.Tx, t *domain.Transfer, user *domain.User) (*domain.Transaction, error) {
	clearingID, err := m.repos.Accounts.GetClearingAccountID(ctx, tx, t.Currency)
	if err != nil {
		return nil, fmt.Errorf("completeBeneficiaryTransfer: %w", err)
	}

	locked, err := lockAccountsInOrder(ctx, tx, m.repos.Accounts, t.SourceAccountID, clearingID)
	if err != nil {
		return nil, fmt.Errorf("completeBeneficiaryTransfer: %w", err)
	}
	src, clearing := locked[t.SourceAccountID], locked[clearingID]

	if err := src.Debit(t.Amount); err != nil {
		return nil, fmt.Errorf("completeBeneficiaryTransfer: source: %w", err)
	}
	if err := clearing.Credit(t.Amount); err != nil {
		return nil, fmt.Errorf("completeBeneficiaryTransfer: clearing: %w", err)
	}

	srcBalance, clearingBalance := src.Balance, clearing.Balance
	transferID, beneficiaryID := t.ID, t.BeneficiaryID
	debit, credit := domain.NewTransferPair(domain.PairSpec{
		Amount:      t.Amount,
		InitiatedBy: user.ID,
		Linkage: domain.TransferLinkage{
			TransferType:  domain.TransferTypeBeneficiary,
			TransferID:    &transferID,
			BeneficiaryID: &beneficiaryID,
		},
		Debit: domain.LegSpec{
			AccountID:    src.ID,
			Description:  domain.DescriptionBeneficiaryTransfer,
			BalanceAfter: &srcBalance,
		},
		Credit: domain.LegSpec{
			AccountID:    clearing.ID,
			Description:  domain.DescriptionBeneficiaryClearingIn,
			BalanceAfter: &clearingBalance,
		},
		At: m.now(),
	})

	if err := m.repos.Transactions.Create(ctx, tx, debit); err != nil {
		return nil, fmt.Errorf("completeBeneficiaryTransfer: debit leg: %w", err)
	}
	if err := m.repos.Transactions.Create(ctx, tx, credit); err != nil {
		return nil, fmt.Errorf("completeBeneficiaryTransfer: credit leg: %w", err)
	}
	if err := m.repos.Accounts.UpdateBalance(ctx, tx, src.ID, srcBalance, src.Version+1); err != nil {
		return nil, fmt.Errorf("completeBeneficiaryTransfer: source: %w", err)
	}
	if err := m.repos.Accounts.UpdateBalance(ctx, tx, clearing.ID, clearingBalance, clearing.Version+1); err != nil {
		return nil, fmt.Errorf("completeBeneficiaryTransfer: clearing: %w", err)
	}
	return debit, nil
}

// ReissueTransferCode issues a fresh code once the outstanding one has
// expired. It refuses while a live code exists.
func (m *Manager) ReissueTransferCode(ctx context.Context, user *domain.User, transferID uuid.UUID) (*domain.Transfer, error) {
	var t *domain.Transfer
	err := m.withRetry(ctx, verification.FlowBeneficiary, func(tx *sql.Tx) error {
		var err error
		t, err = m.lockOwnedTransfer(ctx, tx, user, transferID)
		if err != nil {
			return err
		}

		now := m.now()
		if err := t.CanAcceptCode(now); err != nil {
			return err
		}
		if t.GetCurrentCode(now) != nil {
			return fmt.Errorf("current code still valid: %w", domain.ErrInvalidTransferState)
		}

		src, err := m.repos.Accounts.GetByID(ctx, t.SourceAccountID)
		if err != nil {
			return err
		}
		code, err := m.attachCode(t)
		if err != nil {
			return err
		}
		if err := m.recordCodeIssued(ctx, tx, t, user); err != nil {
			return err
		}
		if err := m.repos.Transfers.Save(ctx, tx, t); err != nil {
			return err
		}
		return m.sendCode(ctx, t, user, src.Label, code)
	})
	if err != nil {
		return nil, fmt.Errorf("ReissueTransferCode: %w", err)
	}

	logging.FromContext(ctx).Info("transfer code reissued", "transfer_id", t.ID, "codes", len(t.Codes))
	return t, nil
}

// CancelTransfer moves a pending or executing transfer to cancelled. No
// ledger mutation exists before completion, so nothing is reversed.
func (m *Manager) CancelTransfer(ctx context.Context, user *domain.User, transferID uuid.UUID) (*domain.Transfer, error) {
	var t *domain.Transfer
	err := m.withRetry(ctx, verification.FlowBeneficiary, func(tx *sql.Tx) error {
		var err error
		t, err = m.lockOwnedTransfer(ctx, tx, user, transferID)
		if err != nil {
			return err
		}
		if err := t.Cancel(m.now()); err != nil {
			return err
		}
		if err := m.repos.Transfers.Save(ctx, tx, t); err != nil {
			return err
		}
		return m.recordEvent(ctx, tx, t.ID, domain.TransferEventCancelled, user.ID, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("CancelTransfer: %w", err)
	}

	logging.FromContext(ctx).Info("beneficiary transfer cancelled", "transfer_id", t.ID)
	return t, nil
}

func verificationOutcome(err, outcome error) string {
	switch {
	case outcome == nil && err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(outcome, domain.ErrTransferBlocked), errors.Is(err, domain.ErrTransferBlocked):
		return metrics.OutcomeBlocked
	case errors.Is(outcome, domain.ErrAuthorizationExpired):
		return metrics.OutcomeExpired
	case errors.Is(outcome, domain.ErrAuthorizationInvalid):
		return metrics.OutcomeInvalid
	case outcome == nil && err != nil:
		return executionOutcome(err)
	default:
		return metrics.OutcomeError
	}
}

func executionAttempted(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrConcurrencyConflict) ||
		errors.Is(err, domain.ErrAccountBlocked) ||
		errors.Is(err, domain.ErrAccountClosed)
}
