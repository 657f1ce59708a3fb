package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/auth"
	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
)

type seedConfig struct {
	DatabaseURL    string          `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret      string          `env:"JWT_SECRET"`
	LogLevel       string          `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv         string          `env:"APP_ENV" envDefault:"development"`
	Users          int             `env:"SEED_USERS" envDefault:"50"`
	InitialBalance decimal.Decimal `env:"SEED_INITIAL_BALANCE" envDefault:"1000.00"`
	SubAccountBal  decimal.Decimal `env:"SEED_SUB_ACCOUNT_AMOUNT" envDefault:"500.00"`
}

var currencies = []domain.Currency{domain.CurrencyEUR, domain.CurrencyUSD, domain.CurrencyGBP}

// bankUserID owns the clearing accounts. It is fixed so reruns can detect an
// already seeded database.
var bankUserID = uuid.MustParse("00000000-0000-0000-0000-00000000b4a1")

type fixtures struct {
	users         [][]any
	accounts      [][]any
	subAccounts   [][]any
	beneficiaries [][]any
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "error", err)
	}

	cfg, err := env.ParseAs[seedConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("transfers-seeder", cfg.LogLevel, cfg.AppEnv)

	ctx := context.Background()
	if err := run(ctx, cfg); err != nil {
		slog.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg seedConfig) error {
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("run: connect: %w", err)
	}
	defer conn.Close(ctx)

	var seeded bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, bankUserID).Scan(&seeded); err != nil {
		return fmt.Errorf("run: check seeded: %w", err)
	}
	if seeded {
		slog.Info("database already seeded, skipping")
		return nil
	}

	f, err := build(cfg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("run: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tables := []struct {
		name    string
		columns []string
		rows    [][]any
	}{
		{"users", []string{"id", "email", "name", "status", "kyc_status", "created_at"}, f.users},
		{"accounts", []string{"id", "user_id", "label", "currency", "account_type", "balance", "overdraft_limit", "version", "status", "created_at"}, f.accounts},
		{"sub_account_credits", []string{"id", "account_id", "amount", "version", "created_at", "updated_at"}, f.subAccounts},
		{"beneficiaries", []string{"id", "user_id", "account_name", "iban", "bank_name", "currency", "created_at"}, f.beneficiaries},
	}
	for _, t := range tables {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(t.rows))
		if err != nil {
			return fmt.Errorf("run: copy %s: %w", t.name, err)
		}
		slog.Info("table seeded", "table", t.name, "rows", n)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("run: commit: %w", err)
	}

	if cfg.JWTSecret != "" && len(f.users) > 1 {
		userID := f.users[1][0].(uuid.UUID)
		email := f.users[1][1].(string)
		token, err := auth.GenerateToken(userID, uuid.NewString(), email, cfg.JWTSecret, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("run: token: %w", err)
		}
		slog.Info("development token", "user_id", userID, "email", email, "token", token)
	}
	return nil
}

func build(cfg seedConfig, now time.Time) (*fixtures, error) {
	balance, err := numeric(cfg.InitialBalance)
	if err != nil {
		return nil, err
	}
	credit, err := numeric(cfg.SubAccountBal)
	if err != nil {
		return nil, err
	}
	zero, _ := numeric(decimal.Zero)

	f := &fixtures{}
	f.users = append(f.users, []any{bankUserID, "clearing@bank.internal", "Bank Clearing", string(domain.UserStatusActive), string(domain.KYCStatusApproved), now})
	for _, c := range currencies {
		f.accounts = append(f.accounts, []any{
			uuid.New(), bankUserID, "Outgoing clearing " + string(c), string(c), string(domain.AccountTypeClearing),
			zero, zero, int64(0), string(domain.AccountStatusActive), now,
		})
	}

	for i := range cfg.Users {
		userID := uuid.New()
		currency := currencies[i%len(currencies)]
		kyc := domain.KYCStatusApproved
		if i%10 == 9 {
			kyc = domain.KYCStatusPending
		}
		f.users = append(f.users, []any{
			userID, fmt.Sprintf("user%03d@example.com", i+1), fmt.Sprintf("Seed User %03d", i+1),
			string(domain.UserStatusActive), string(kyc), now,
		})

		accountID := uuid.New()
		f.accounts = append(f.accounts, []any{
			accountID, userID, "Main " + string(currency), string(currency), string(domain.AccountTypeUser),
			balance, zero, int64(0), string(domain.AccountStatusActive), now,
		})
		f.subAccounts = append(f.subAccounts, []any{uuid.New(), accountID, credit, int64(0), now, now})
		f.beneficiaries = append(f.beneficiaries, []any{
			uuid.New(), userID, fmt.Sprintf("Landlord %03d", i+1), fmt.Sprintf("DE89370400440532013%03d", i%1000),
			"Example Bank", string(currency), now,
		})
	}
	return f, nil
}

func numeric(d decimal.Decimal) (pgtype.Numeric, error) {
	if d.IsNegative() {
		return pgtype.Numeric{}, fmt.Errorf("numeric: negative seed amount %s", d)
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}, nil
}
