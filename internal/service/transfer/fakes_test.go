package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/verification"
)

// memLedger keeps every table in memory. WithTx serializes units of work and
// restores the previous state when fn fails. Repository reads do not lock, so
// tests drive it from a single goroutine.
type memLedger struct {
	mu sync.Mutex

	accounts      map[uuid.UUID]domain.Account
	subs          map[uuid.UUID]domain.SubAccountCredit
	transfers     map[uuid.UUID]domain.Transfer
	beneficiaries map[uuid.UUID]domain.Beneficiary
	txns          []domain.Transaction
	events        []domain.TransferEvent

	// balanceConflicts makes the next n UpdateBalance calls report a conflict.
	balanceConflicts int
	// saveConflicts does the same for Transfers.Save.
	saveConflicts int
	txCount       int
}

func newMemLedger() *memLedger {
	return &memLedger{
		accounts:      map[uuid.UUID]domain.Account{},
		subs:          map[uuid.UUID]domain.SubAccountCredit{},
		transfers:     map[uuid.UUID]domain.Transfer{},
		beneficiaries: map[uuid.UUID]domain.Beneficiary{},
	}
}

func (l *memLedger) repositories() Repositories {
	return Repositories{
		Accounts:      memAccounts{l},
		SubAccounts:   memSubAccounts{l},
		Transactions:  memTransactions{l},
		Transfers:     memTransfers{l},
		Events:        memEvents{l},
		Beneficiaries: memBeneficiaries{l},
	}
}

func copyTransfer(t domain.Transfer) domain.Transfer {
	t.Codes = append([]domain.TransferCode(nil), t.Codes...)
	return t
}

func (l *memLedger) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txCount++

	accounts := maps.Clone(l.accounts)
	subs := maps.Clone(l.subs)
	transfers := make(map[uuid.UUID]domain.Transfer, len(l.transfers))
	for id, t := range l.transfers {
		transfers[id] = copyTransfer(t)
	}
	txns := len(l.txns)
	events := len(l.events)

	if err := fn(nil); err != nil {
		l.accounts, l.subs, l.transfers = accounts, subs, transfers
		l.txns = l.txns[:txns]
		l.events = l.events[:events]
		return err
	}
	return nil
}

func (l *memLedger) eventTypes(transferID uuid.UUID) []domain.TransferEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.TransferEventType
	for _, e := range l.events {
		if e.TransferID == transferID {
			out = append(out, e.EventType)
		}
	}
	return out
}

func (l *memLedger) account(id uuid.UUID) domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[id]
}

func (l *memLedger) sub(id uuid.UUID) domain.SubAccountCredit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subs[id]
}

func (l *memLedger) transactions() []domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Transaction(nil), l.txns...)
}

func (l *memLedger) storedTransfer(id uuid.UUID) domain.Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyTransfer(l.transfers[id])
}

type memAccounts struct{ l *memLedger }

func (r memAccounts) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.get(id)
}

func (r memAccounts) get(id uuid.UUID) (*domain.Account, error) {
	a, ok := r.l.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (r memAccounts) GetForUpdate(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	return r.get(id)
}

func (r memAccounts) GetClearingAccountID(_ context.Context, _ *sql.Tx, currency domain.Currency) (uuid.UUID, error) {
	for _, a := range r.l.accounts {
		if a.AccountType == domain.AccountTypeClearing && a.Currency == currency {
			return a.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("clearing %s: %w", currency, domain.ErrNotFound)
}

func (r memAccounts) UpdateBalance(_ context.Context, _ *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error {
	if r.l.balanceConflicts > 0 {
		r.l.balanceConflicts--
		return domain.ErrConcurrencyConflict
	}
	a, ok := r.l.accounts[id]
	if !ok || a.Version != newVersion-1 {
		return domain.ErrConcurrencyConflict
	}
	a.Balance = newBalance
	a.Version = newVersion
	r.l.accounts[id] = a
	return nil
}

type memSubAccounts struct{ l *memLedger }

func (r memSubAccounts) GetByID(_ context.Context, id uuid.UUID) (*domain.SubAccountCredit, error) {
	return r.get(id)
}

func (r memSubAccounts) get(id uuid.UUID) (*domain.SubAccountCredit, error) {
	s, ok := r.l.subs[id]
	if !ok {
		return nil, fmt.Errorf("sub-account %s: %w", id, domain.ErrNotFound)
	}
	return &s, nil
}

func (r memSubAccounts) GetForUpdate(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.SubAccountCredit, error) {
	return r.get(id)
}

func (r memSubAccounts) UpdateAmount(_ context.Context, _ *sql.Tx, id uuid.UUID, newAmount decimal.Decimal, newVersion int64, at time.Time) error {
	s, ok := r.l.subs[id]
	if !ok || s.Version != newVersion-1 {
		return domain.ErrConcurrencyConflict
	}
	s.Amount = newAmount
	s.Version = newVersion
	s.UpdatedAt = at
	r.l.subs[id] = s
	return nil
}

type memTransactions struct{ l *memLedger }

func (r memTransactions) Create(_ context.Context, _ *sql.Tx, t *domain.Transaction) error {
	r.l.txns = append(r.l.txns, *t)
	return nil
}

type memTransfers struct{ l *memLedger }

func (r memTransfers) Create(_ context.Context, _ *sql.Tx, t *domain.Transfer) error {
	r.l.transfers[t.ID] = copyTransfer(*t)
	return nil
}

func (r memTransfers) GetByID(_ context.Context, id uuid.UUID) (*domain.Transfer, error) {
	return r.get(id)
}

func (r memTransfers) get(id uuid.UUID) (*domain.Transfer, error) {
	t, ok := r.l.transfers[id]
	if !ok {
		return nil, fmt.Errorf("transfer %s: %w", id, domain.ErrNotFound)
	}
	c := copyTransfer(t)
	return &c, nil
}

func (r memTransfers) GetForUpdate(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Transfer, error) {
	return r.get(id)
}

func (r memTransfers) Save(_ context.Context, _ *sql.Tx, t *domain.Transfer) error {
	if r.l.saveConflicts > 0 {
		r.l.saveConflicts--
		return domain.ErrConcurrencyConflict
	}
	stored, ok := r.l.transfers[t.ID]
	if !ok || stored.Version != t.Version {
		return domain.ErrConcurrencyConflict
	}
	t.Version++
	r.l.transfers[t.ID] = copyTransfer(*t)
	return nil
}

type memEvents struct{ l *memLedger }

func (r memEvents) Create(_ context.Context, _ *sql.Tx, e *domain.TransferEvent) error {
	r.l.events = append(r.l.events, *e)
	return nil
}

type memBeneficiaries struct{ l *memLedger }

func (r memBeneficiaries) GetByID(_ context.Context, id uuid.UUID) (*domain.Beneficiary, error) {
	b, ok := r.l.beneficiaries[id]
	if !ok {
		return nil, fmt.Errorf("beneficiary %s: %w", id, domain.ErrNotFound)
	}
	return &b, nil
}

// seqIssuer hands out 100001, 100002, ... and "hashes" by prefixing.
type seqIssuer struct {
	mu   sync.Mutex
	next int
}

func (i *seqIssuer) Issue() (string, string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.next++
	code := fmt.Sprintf("%06d", 100000+i.next)
	return code, "hash:" + code, nil
}

func (i *seqIssuer) Matches(hash, code string) bool {
	return strings.TrimPrefix(hash, "hash:") == code
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []verification.Message
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, msg verification.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *fakeDispatcher) last() verification.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

var errBrokerDown = errors.New("broker unavailable")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	mgr        *Manager
	ledger     *memLedger
	dispatcher *fakeDispatcher
	clock      *testClock
	user       *domain.User
	account    domain.Account
}

func newHarness() *harness {
	ledger := newMemLedger()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	dispatcher := &fakeDispatcher{}

	user := &domain.User{
		ID:        uuid.New(),
		Email:     "ada@example.com",
		Name:      "Ada",
		Status:    domain.UserStatusActive,
		KYCStatus: domain.KYCStatusApproved,
	}
	account := domain.Account{
		ID:          uuid.New(),
		UserID:      user.ID,
		Label:       "Main EUR",
		Currency:    domain.CurrencyEUR,
		AccountType: domain.AccountTypeUser,
		Balance:     decimal.RequireFromString("1000.00"),
		Status:      domain.AccountStatusActive,
	}
	ledger.accounts[account.ID] = account

	mgr := NewManager(ledger.repositories(), ledger, &seqIssuer{}, dispatcher, Options{
		CreditCodeTTL:       10 * time.Minute,
		TransferCodeTTL:     10 * time.Minute,
		Lockout:             domain.LockoutPolicy{MaxAttempts: 3, BlockDuration: 30 * time.Minute},
		SecondCodeThreshold: decimal.RequireFromString("10000.00"),
		MaxRetries:          2,
		Clock:               clock.Now,
	})

	return &harness{
		mgr:        mgr,
		ledger:     ledger,
		dispatcher: dispatcher,
		clock:      clock,
		user:       user,
		account:    account,
	}
}

func (h *harness) addSubAccount(amount string) domain.SubAccountCredit {
	s := domain.SubAccountCredit{
		ID:        uuid.New(),
		AccountID: h.account.ID,
		Amount:    decimal.RequireFromString(amount),
	}
	h.ledger.subs[s.ID] = s
	return s
}

func (h *harness) addClearing(currency domain.Currency) domain.Account {
	a := domain.Account{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Currency:    currency,
		AccountType: domain.AccountTypeClearing,
		Status:      domain.AccountStatusActive,
	}
	h.ledger.accounts[a.ID] = a
	return a
}

func (h *harness) addBeneficiary(currency domain.Currency) domain.Beneficiary {
	b := domain.Beneficiary{
		ID:          uuid.New(),
		UserID:      h.user.ID,
		AccountName: "Grace",
		IBAN:        "GB29NWBK60161331926819",
		Currency:    currency,
	}
	h.ledger.beneficiaries[b.ID] = b
	return b
}
