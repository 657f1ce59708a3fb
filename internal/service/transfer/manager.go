package transfer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/config"
	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
	"github.com/josh-kwaku/banking-transfers/internal/metrics"
	"github.com/josh-kwaku/banking-transfers/internal/verification"
)

type subAccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SubAccountCredit, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.SubAccountCredit, error)
	UpdateAmount(ctx context.Context, tx *sql.Tx, id uuid.UUID, newAmount decimal.Decimal, newVersion int64, at time.Time) error
}

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	GetClearingAccountID(ctx context.Context, tx *sql.Tx, currency domain.Currency) (uuid.UUID, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
}

type transferRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transfer, error)
	Save(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.TransferEvent) error
}

type beneficiaryRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Beneficiary, error)
}

type unitOfWork interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type codeIssuer interface {
	Issue() (code, hash string, err error)
	Matches(hash, code string) bool
}

// Repositories groups the persistence ports the Manager needs.
type Repositories struct {
	Accounts      accountRepo
	SubAccounts   subAccountRepo
	Transactions  transactionRepo
	Transfers     transferRepo
	Events        eventRepo
	Beneficiaries beneficiaryRepo
}

type Options struct {
	CreditCodeTTL       time.Duration
	TransferCodeTTL     time.Duration
	Lockout             domain.LockoutPolicy
	SecondCodeThreshold decimal.Decimal
	MaxRetries          int
	RetryBackoff        time.Duration
	Clock               func() time.Time
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CreditCodeTTL:   cfg.CreditCodeTTL,
		TransferCodeTTL: cfg.TransferCodeTTL,
		Lockout: domain.LockoutPolicy{
			MaxAttempts:   cfg.MaxCodeAttempts,
			BlockDuration: cfg.BlockDuration,
		},
		SecondCodeThreshold: cfg.SecondCodeThreshold,
		MaxRetries:          cfg.ExecuteMaxRetries,
		RetryBackoff:        20 * time.Millisecond,
	}
}

// Manager authorizes and executes both transfer flows. Every balance change
// goes through it, paired with Transaction rows in the same unit of work.
type Manager struct {
	repos      Repositories
	uow        unitOfWork
	codes      codeIssuer
	dispatcher verification.Dispatcher
	opts       Options
	now        func() time.Time
}

func NewManager(repos Repositories, uow unitOfWork, codes codeIssuer, dispatcher verification.Dispatcher, opts Options) *Manager {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Manager{
		repos:      repos,
		uow:        uow,
		codes:      codes,
		dispatcher: dispatcher,
		opts:       opts,
		now:        func() time.Time { return now().UTC() },
	}
}

// withRetry runs fn as one unit of work, re-running it from scratch when it
// fails with a concurrency conflict.
func (m *Manager) withRetry(ctx context.Context, flow verification.Flow, fn func(tx *sql.Tx) error) error {
	attempts := m.opts.MaxRetries + 1

	var err error
	for i := range attempts {
		err = m.uow.WithTx(ctx, fn)
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}

		metrics.ConcurrencyRetries.WithLabelValues(string(flow)).Inc()
		logging.FromContext(ctx).Debug("unit of work conflicted, retrying", "flow", flow, "attempt", i+1, "error", err)

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("withRetry: %w", ctx.Err())
		case <-time.After(m.opts.RetryBackoff * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("withRetry: gave up after %d attempts: %w", attempts, err)
}

func (m *Manager) recordEvent(ctx context.Context, tx *sql.Tx, transferID uuid.UUID, eventType domain.TransferEventType, actor uuid.UUID, payload map[string]any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("recordEvent: %w", err)
		}
		raw = b
	}

	event := &domain.TransferEvent{
		ID:         uuid.New(),
		TransferID: transferID,
		EventType:  eventType,
		Actor:      fmt.Sprintf("user:%s", actor),
		Payload:    raw,
		CreatedAt:  m.now(),
	}
	if err := m.repos.Events.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("recordEvent: %w", err)
	}
	return nil
}

func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts accountRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		if _, seen := result[id]; seen {
			continue
		}
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

func executionOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, domain.ErrInsufficientFunds):
		return metrics.OutcomeInsufficient
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
