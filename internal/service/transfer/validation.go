package transfer

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
)

// ParseAmount accepts a plain decimal string with at most two fractional digits.
func ParseAmount(raw string) (decimal.Decimal, *domain.FieldError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, &domain.FieldError{Field: "amount", Code: domain.FieldCodeRequired, Message: "amount is required"}
	}
	if strings.ContainsAny(raw, "eE") {
		return decimal.Zero, &domain.FieldError{Field: "amount", Code: domain.FieldCodeInvalid, Message: "amount must be a plain decimal number"}
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &domain.FieldError{Field: "amount", Code: domain.FieldCodeInvalid, Message: "amount must be a decimal number"}
	}
	if !amount.IsPositive() {
		return decimal.Zero, &domain.FieldError{Field: "amount", Code: domain.FieldCodeNotPositive, Message: "amount must be greater than zero"}
	}
	if !amount.Equal(amount.Truncate(domain.AmountScale)) {
		return decimal.Zero, &domain.FieldError{Field: "amount", Code: domain.FieldCodeScale, Message: "amount must have at most 2 decimal places"}
	}
	return amount, nil
}

// ValidateTransferAmount checks a requested amount against the funds left in
// sub. It has no side effects and reports every problem as a FieldError.
func ValidateTransferAmount(sub *domain.SubAccountCredit, raw string) []domain.FieldError {
	amount, fe := ParseAmount(raw)
	if fe != nil {
		return []domain.FieldError{*fe}
	}
	if amount.GreaterThan(sub.Amount) {
		return []domain.FieldError{{
			Field:   "amount",
			Code:    domain.FieldCodeInsufficient,
			Message: "amount exceeds the available credit of " + sub.Amount.StringFixed(2),
		}}
	}
	return nil
}
