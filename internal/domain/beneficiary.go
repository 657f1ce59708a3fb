package domain

import (
	"time"

	"github.com/google/uuid"
)

// Beneficiary is a registered external destination. The bank does not hold
// its ledger, so money leaving for it settles through a clearing account.
type Beneficiary struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	AccountName string
	IBAN        string
	BankName    string
	Currency    Currency
	CreatedAt   time.Time
}
