package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyGBP:
		return true
	}
	return false
}

// AmountScale is the number of fractional digits a ledger amount may carry.
const AmountScale = 2

// CheckAmount rejects amounts that are not positive or that carry more than
// AmountScale fractional digits.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrInvalidAmount
	}
	return nil
}

type AccountType string

const (
	AccountTypeUser     AccountType = "user"
	AccountTypeClearing AccountType = "clearing"
)

type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusBlocked AccountStatus = "blocked"
	AccountStatusClosed  AccountStatus = "closed"
)

type Account struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Label          string
	Currency       Currency
	AccountType    AccountType
	Balance        decimal.Decimal
	OverdraftLimit decimal.Decimal
	Version        int64
	Status         AccountStatus
	CreatedAt      time.Time
}

// CheckActive reports why the account cannot take part in a ledger mutation.
func (a *Account) CheckActive() error {
	switch a.Status {
	case AccountStatusActive:
		return nil
	case AccountStatusBlocked:
		return ErrAccountBlocked
	default:
		return ErrAccountClosed
	}
}

// Available is the amount that can be debited: balance plus any overdraft allowance.
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Add(a.OverdraftLimit)
}

// Debit lowers the balance. The balance may only go negative within OverdraftLimit.
func (a *Account) Debit(amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return fmt.Errorf("Debit: %w", err)
	}
	if err := a.CheckActive(); err != nil {
		return fmt.Errorf("Debit: %w", err)
	}
	if amount.GreaterThan(a.Available()) {
		return fmt.Errorf("Debit: %w", ErrInsufficientFunds)
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

func (a *Account) Credit(amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return fmt.Errorf("Credit: %w", err)
	}
	if err := a.CheckActive(); err != nil {
		return fmt.Errorf("Credit: %w", err)
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

// SubAccountCredit is a ring-fenced pool of disbursed credit attached to one
// account and not yet swept into its spendable balance.
type SubAccountCredit struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Debit never drives Amount below zero.
func (s *SubAccountCredit) Debit(amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return fmt.Errorf("Debit: %w", err)
	}
	if amount.GreaterThan(s.Amount) {
		return fmt.Errorf("Debit: %w", ErrInsufficientFunds)
	}
	s.Amount = s.Amount.Sub(amount)
	return nil
}
