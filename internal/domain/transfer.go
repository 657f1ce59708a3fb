package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusExecuting TransferStatus = "executing"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusCancelled TransferStatus = "cancelled"
)

func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusCancelled
}

// TransferCode is one link in a transfer's authorization chain. Only the
// hash of the code value is kept.
type TransferCode struct {
	ID         uuid.UUID
	TransferID uuid.UUID
	Sequence   int
	Hash       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

func (c *TransferCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *TransferCode) IsConsumed() bool {
	return c.ConsumedAt != nil
}

// LockoutPolicy is applied per transfer. MaxAttempts <= 0 disables blocking;
// a zero BlockDuration blocks until the transfer is cancelled.
type LockoutPolicy struct {
	MaxAttempts   int
	BlockDuration time.Duration
}

type Transfer struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	SourceAccountID    uuid.UUID
	BeneficiaryID      uuid.UUID
	Amount             decimal.Decimal
	Currency           Currency
	Description        string
	Status             TransferStatus
	RequiredCodes      int
	Codes              []TransferCode
	FailedAttempts     int
	Blocked            bool
	BlockedUntil       *time.Time
	DebitTransactionID *uuid.UUID
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
}

func NewTransfer(userID, sourceAccountID, beneficiaryID uuid.UUID, amount decimal.Decimal, currency Currency, description string, requiredCodes int, now time.Time) (*Transfer, error) {
	if err := CheckAmount(amount); err != nil {
		return nil, fmt.Errorf("NewTransfer: %w", err)
	}
	if requiredCodes < 1 {
		requiredCodes = 1
	}
	return &Transfer{
		ID:              uuid.New(),
		UserID:          userID,
		SourceAccountID: sourceAccountID,
		BeneficiaryID:   beneficiaryID,
		Amount:          amount,
		Currency:        currency,
		Description:     description,
		Status:          TransferStatusPending,
		RequiredCodes:   requiredCodes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// AttachCode appends a new code to the chain and returns a copy of it.
func (t *Transfer) AttachCode(hash string, ttl time.Duration, now time.Time) (TransferCode, error) {
	if t.Status.IsTerminal() {
		return TransferCode{}, fmt.Errorf("AttachCode: %w", ErrTransferTerminal)
	}
	c := TransferCode{
		ID:         uuid.New(),
		TransferID: t.ID,
		Sequence:   len(t.Codes) + 1,
		Hash:       hash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	t.Codes = append(t.Codes, c)
	t.UpdatedAt = now
	return c, nil
}

// GetCurrentCode returns the oldest unconsumed, unexpired code, or nil.
func (t *Transfer) GetCurrentCode(now time.Time) *TransferCode {
	for i := range t.Codes {
		c := &t.Codes[i]
		if !c.IsConsumed() && !c.IsExpired(now) {
			return c
		}
	}
	return nil
}

func (t *Transfer) ConsumedCodes() int {
	n := 0
	for i := range t.Codes {
		if t.Codes[i].IsConsumed() {
			n++
		}
	}
	return n
}

func (t *Transfer) IsAccountBlocked(now time.Time) bool {
	if !t.Blocked {
		return false
	}
	return t.BlockedUntil == nil || now.Before(*t.BlockedUntil)
}

// liftLapsedBlock clears a block whose window has passed and resets the counter.
func (t *Transfer) liftLapsedBlock(now time.Time) {
	if t.Blocked && !t.IsAccountBlocked(now) {
		t.Blocked = false
		t.BlockedUntil = nil
		t.FailedAttempts = 0
		t.UpdatedAt = now
	}
}

// RecordFailedAttempt reports whether this attempt tipped the transfer into a block.
func (t *Transfer) RecordFailedAttempt(now time.Time, policy LockoutPolicy) bool {
	t.FailedAttempts++
	t.UpdatedAt = now
	if policy.MaxAttempts <= 0 || t.FailedAttempts < policy.MaxAttempts {
		return false
	}
	t.Blocked = true
	t.BlockedUntil = nil
	if policy.BlockDuration > 0 {
		until := now.Add(policy.BlockDuration)
		t.BlockedUntil = &until
	}
	return true
}

// CanAcceptCode reports whether the transfer is in a state where a code may
// be submitted or reissued. It also lifts a lapsed block.
func (t *Transfer) CanAcceptCode(now time.Time) error {
	if t.Status.IsTerminal() {
		return ErrTransferTerminal
	}
	t.liftLapsedBlock(now)
	if t.IsAccountBlocked(now) {
		return ErrTransferBlocked
	}
	return nil
}

// SubmitCode checks a submitted value against the current code using match.
// On success the code is consumed and the returned flag tells whether it was
// the final code of the chain. A mismatch counts toward the lockout; the
// error then wraps ErrAuthorizationInvalid and, if the attempt caused a
// block, ErrTransferBlocked as well.
func (t *Transfer) SubmitCode(now time.Time, policy LockoutPolicy, match func(hash string) bool) (bool, error) {
	if err := t.CanAcceptCode(now); err != nil {
		return false, fmt.Errorf("SubmitCode: %w", err)
	}

	current := t.GetCurrentCode(now)
	if current == nil {
		return false, fmt.Errorf("SubmitCode: %w", ErrAuthorizationExpired)
	}

	if !match(current.Hash) {
		if t.RecordFailedAttempt(now, policy) {
			return false, fmt.Errorf("SubmitCode: %w: %w", ErrAuthorizationInvalid, ErrTransferBlocked)
		}
		return false, fmt.Errorf("SubmitCode: %w", ErrAuthorizationInvalid)
	}

	consumed := now
	current.ConsumedAt = &consumed
	t.FailedAttempts = 0
	t.Status = TransferStatusExecuting
	t.UpdatedAt = now

	return t.ConsumedCodes() >= t.RequiredCodes, nil
}

// Complete records the ledger mutation. It is only valid once every
// required code has been consumed.
func (t *Transfer) Complete(debitTransactionID uuid.UUID, now time.Time) error {
	if t.Status != TransferStatusExecuting || t.ConsumedCodes() < t.RequiredCodes {
		return fmt.Errorf("Complete: status %s with %d/%d codes: %w",
			t.Status, t.ConsumedCodes(), t.RequiredCodes, ErrInvalidTransferState)
	}
	t.Status = TransferStatusCompleted
	t.DebitTransactionID = &debitTransactionID
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

func (t *Transfer) Cancel(now time.Time) error {
	if t.Status != TransferStatusPending && t.Status != TransferStatusExecuting {
		return fmt.Errorf("Cancel: %w", ErrTransferTerminal)
	}
	t.Status = TransferStatusCancelled
	t.CancelledAt = &now
	t.UpdatedAt = now
	return nil
}
