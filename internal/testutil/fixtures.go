package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
)

var (
	SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

	ClearingEURID = uuid.MustParse("00000000-0000-0000-0003-000000000001")
	ClearingUSDID = uuid.MustParse("00000000-0000-0000-0003-000000000002")
	ClearingGBPID = uuid.MustParse("00000000-0000-0000-0003-000000000003")
)

func SeedSystemUser(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO users (id, email, name, status, kyc_status)
		 VALUES ($1, $2, $3, 'active', 'approved')
		 ON CONFLICT (id) DO NOTHING`,
		SystemUserID, "system@bank.internal", "System",
	)
	if err != nil {
		t.Fatalf("seed system user: %v", err)
	}
	return SystemUserID
}

// SeedClearingAccounts creates one zero-balance clearing account per currency.
func SeedClearingAccounts(t *testing.T, db *sql.DB) {
	t.Helper()

	systemUserID := SeedSystemUser(t, db)
	clearing := []struct {
		id       uuid.UUID
		currency domain.Currency
	}{
		{ClearingEURID, domain.CurrencyEUR},
		{ClearingUSDID, domain.CurrencyUSD},
		{ClearingGBPID, domain.CurrencyGBP},
	}

	for _, c := range clearing {
		_, err := db.Exec(
			`INSERT INTO accounts (id, user_id, label, currency, account_type, balance, status)
			 VALUES ($1, $2, $3, $4, 'clearing', 0, 'active')
			 ON CONFLICT (id) DO NOTHING`,
			c.id, systemUserID, "clearing "+string(c.currency), c.currency,
		)
		if err != nil {
			t.Fatalf("seed clearing %s: %v", c.currency, err)
		}
	}
}

func SeedTestUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()

	u := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Status:    domain.UserStatusActive,
		KYCStatus: domain.KYCStatusApproved,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO users (id, email, name, status, kyc_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.Status, u.KYCStatus, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

func SeedTestAccount(t *testing.T, db *sql.DB, userID uuid.UUID, currency domain.Currency, balance string) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:          uuid.New(),
		UserID:      userID,
		Label:       "Main " + string(currency),
		Currency:    currency,
		AccountType: domain.AccountTypeUser,
		Balance:     decimal.RequireFromString(balance),
		Status:      domain.AccountStatusActive,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, user_id, label, currency, account_type, balance, version, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.UserID, a.Label, a.Currency, a.AccountType, a.Balance, a.Version, a.Status, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test account %s/%s: %v", userID, currency, err)
	}
	return a
}

func SeedSubAccountCredit(t *testing.T, db *sql.DB, accountID uuid.UUID, amount string) *domain.SubAccountCredit {
	t.Helper()

	now := time.Now().UTC()
	s := &domain.SubAccountCredit{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.Exec(
		`INSERT INTO sub_account_credits (id, account_id, amount, version, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, $4, $5)`,
		s.ID, s.AccountID, s.Amount, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed sub-account credit for %s: %v", accountID, err)
	}
	return s
}

func SeedBeneficiary(t *testing.T, db *sql.DB, userID uuid.UUID, currency domain.Currency) *domain.Beneficiary {
	t.Helper()

	b := &domain.Beneficiary{
		ID:          uuid.New(),
		UserID:      userID,
		AccountName: "Jane Payee",
		IBAN:        "DE89370400440532013000",
		BankName:    "Commerzbank",
		Currency:    currency,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO beneficiaries (id, user_id, account_name, iban, bank_name, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.UserID, b.AccountName, b.IBAN, b.BankName, b.Currency, b.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed beneficiary for %s: %v", userID, err)
	}
	return b
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func GetSubAccountAmount(t *testing.T, db *sql.DB, subAccountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var amount decimal.Decimal
	err := db.QueryRow(`SELECT amount FROM sub_account_credits WHERE id = $1`, subAccountID).Scan(&amount)
	if err != nil {
		t.Fatalf("get sub-account amount %s: %v", subAccountID, err)
	}
	return amount
}

func CountTransactions(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for account %s: %v", accountID, err)
	}
	return count
}

// SumSignedAmounts adds up every transaction in the table, debits negative.
func SumSignedAmounts(t *testing.T, db *sql.DB) decimal.Decimal {
	t.Helper()

	var sum decimal.Decimal
	err := db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN type = 'debit' THEN -amount ELSE amount END), 0) FROM transactions`,
	).Scan(&sum)
	if err != nil {
		t.Fatalf("sum transactions: %v", err)
	}
	return sum
}
