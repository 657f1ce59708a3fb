package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

type TransactionCategory string

const TransactionCategoryTransfer TransactionCategory = "transfer"

type TransactionStatus string

const TransactionStatusCompleted TransactionStatus = "completed"

// Description codes are resolved to user-facing text at render time.
type Description string

const (
	DescriptionCreditTransferOut     Description = "transaction.credit_transfer.out"
	DescriptionCreditTransferIn      Description = "transaction.credit_transfer.in"
	DescriptionBeneficiaryTransfer   Description = "transaction.beneficiary_transfer.out"
	DescriptionBeneficiaryClearingIn Description = "transaction.beneficiary_transfer.clearing"
)

type TransferType string

const (
	TransferTypeCreditToMain TransferType = "credit_to_main"
	TransferTypeBeneficiary  TransferType = "beneficiary"
)

// TransferLinkage ties the two legs of a transfer together and back to
// whatever initiated them. Only the ids relevant to TransferType are set.
type TransferLinkage struct {
	TransferType         TransferType `json:"transfer_type"`
	SubAccountCreditID   *uuid.UUID   `json:"sub_account_credit_id,omitempty"`
	TransferID           *uuid.UUID   `json:"transfer_id,omitempty"`
	BeneficiaryID        *uuid.UUID   `json:"beneficiary_id,omitempty"`
	RelatedTransactionID *uuid.UUID   `json:"related_transaction_id,omitempty"`
}

func (l TransferLinkage) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("TransferLinkage.Value: %w", err)
	}
	return string(b), nil
}

func (l *TransferLinkage) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		*l = TransferLinkage{}
		return nil
	default:
		return fmt.Errorf("TransferLinkage.Scan: unsupported type %T", src)
	}
	if err := json.Unmarshal(b, l); err != nil {
		return fmt.Errorf("TransferLinkage.Scan: %w", err)
	}
	return nil
}

// Transaction is an immutable record of one balance movement. Amount is
// always positive; Type carries the sign.
type Transaction struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Type         TransactionType
	Category     TransactionCategory
	Amount       decimal.Decimal
	Description  Description
	Status       TransactionStatus
	ProcessedAt  time.Time
	BalanceAfter *decimal.Decimal
	InitiatedBy  uuid.UUID
	Metadata     TransferLinkage
	CreatedAt    time.Time
}

func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type LegSpec struct {
	AccountID    uuid.UUID
	Description  Description
	BalanceAfter *decimal.Decimal
}

type PairSpec struct {
	Amount      decimal.Decimal
	InitiatedBy uuid.UUID
	Linkage     TransferLinkage
	Debit       LegSpec
	Credit      LegSpec
	At          time.Time
}

// NewTransferPair builds a debit leg and a credit leg for the same amount.
// The credit leg's metadata points at the debit leg.
func NewTransferPair(p PairSpec) (*Transaction, *Transaction) {
	debit := &Transaction{
		ID:           uuid.New(),
		AccountID:    p.Debit.AccountID,
		Type:         TransactionTypeDebit,
		Category:     TransactionCategoryTransfer,
		Amount:       p.Amount,
		Description:  p.Debit.Description,
		Status:       TransactionStatusCompleted,
		ProcessedAt:  p.At,
		BalanceAfter: p.Debit.BalanceAfter,
		InitiatedBy:  p.InitiatedBy,
		Metadata:     p.Linkage,
		CreatedAt:    p.At,
	}

	creditLink := p.Linkage
	creditLink.RelatedTransactionID = &debit.ID

	credit := &Transaction{
		ID:           uuid.New(),
		AccountID:    p.Credit.AccountID,
		Type:         TransactionTypeCredit,
		Category:     TransactionCategoryTransfer,
		Amount:       p.Amount,
		Description:  p.Credit.Description,
		Status:       TransactionStatusCompleted,
		ProcessedAt:  p.At,
		BalanceAfter: p.Credit.BalanceAfter,
		InitiatedBy:  p.InitiatedBy,
		Metadata:     creditLink,
		CreatedAt:    p.At,
	}
	return debit, credit
}
