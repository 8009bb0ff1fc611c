// Package ledgertest provides in-memory ledger fixtures for package tests.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type balanceKey struct {
	account int64
	period  int64
}

// Store is an in-memory ledger.Store. Transactions hold the store lock and
// restore the previous state when fn fails.
type Store struct {
	mu       sync.Mutex
	periods  Periods
	records  []ledger.Record
	balances map[balanceKey]ledger.AccountBalance
	nextID   int64

	// Drafts are unposted lines included when TotalsOptions.IncludeDrafts is set.
	Drafts []ledger.Record
	// FailSum makes SumMovements fail for the given accounts.
	FailSum map[int64]error
}

// NewStore returns an empty ledger backed by the given periods.
func NewStore(p Periods) *Store {
	if p == nil {
		p = Periods{}
	}
	return &Store{periods: p, balances: make(map[balanceKey]ledger.AccountBalance), FailSum: make(map[int64]error)}
}

// Records returns a copy of every ledger row.
func (s *Store) Records() []ledger.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Record(nil), s.records...)
}

// Balance returns the stored balance row, if any.
func (s *Store) Balance(accountID, periodID int64) (ledger.AccountBalance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[balanceKey{accountID, periodID}]
	return b, ok
}

// SetBalance overwrites a balance row, simulating drift.
func (s *Store) SetBalance(b ledger.AccountBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{b.AccountID, b.PeriodID}] = b
}

// Append adds posted ledger rows directly, bypassing balances.
func (s *Store) Append(records ...ledger.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.nextID++
		r.ID = s.nextID
		s.records = append(s.records, r)
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := append([]ledger.Record(nil), s.records...)
	balances := make(map[balanceKey]ledger.AccountBalance, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	nextID := s.nextID
	if err := fn(ctx, txView{s}); err != nil {
		s.records, s.balances, s.nextID = records, balances, nextID
		return err
	}
	return nil
}

func (s *Store) SumMovements(ctx context.Context, accountID int64, window ledger.Window) (ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum(accountID, window)
}

func (s *Store) sum(accountID int64, window ledger.Window) (ledger.Movement, error) {
	if err := s.FailSum[accountID]; err != nil {
		return ledger.Movement{}, err
	}
	m := ledger.Movement{AccountID: accountID, Debit: decimal.Zero, Credit: decimal.Zero}
	for _, r := range s.records {
		if r.AccountID == accountID && window.Contains(r.EntryDate) {
			m.Debit = m.Debit.Add(r.Debit)
			m.Credit = m.Credit.Add(r.Credit)
		}
	}
	return m, nil
}

func (s *Store) ListRecords(ctx context.Context, filter ledger.RecordFilter) ([]ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Record
	for _, r := range s.records {
		if r.AccountID != filter.AccountID || !filter.Window.Contains(r.EntryDate) {
			continue
		}
		if filter.PeriodID != 0 && r.PeriodID != filter.PeriodID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ListBalances(ctx context.Context, periodID int64, accountIDs []int64) ([]ledger.AccountBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.AccountBalance
	for _, id := range accountIDs {
		if b, ok := s.balances[balanceKey{id, periodID}]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) AccountTotals(ctx context.Context, opts ledger.TotalsOptions) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byAccount := make(map[int64]*ledger.Movement)
	add := func(r ledger.Record) {
		if !opts.Window.Contains(r.EntryDate) {
			return
		}
		m, ok := byAccount[r.AccountID]
		if !ok {
			m = &ledger.Movement{AccountID: r.AccountID, Debit: decimal.Zero, Credit: decimal.Zero}
			byAccount[r.AccountID] = m
		}
		m.Debit = m.Debit.Add(r.Debit)
		m.Credit = m.Credit.Add(r.Credit)
	}
	for _, r := range s.records {
		add(r)
	}
	if opts.IncludeDrafts {
		for _, r := range s.Drafts {
			add(r)
		}
	}
	out := make([]ledger.Movement, 0, len(byAccount))
	for _, m := range byAccount {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// txView runs under the store lock held by WithTx.
type txView struct {
	s *Store
}

func (t txView) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	return t.s.periods.Get(ctx, periodID)
}

func (t txView) InsertRecords(ctx context.Context, records []ledger.Record) (int, error) {
	for _, r := range records {
		t.s.nextID++
		r.ID = t.s.nextID
		t.s.records = append(t.s.records, r)
	}
	return len(records), nil
}

func (t txView) ApplyBalanceDelta(ctx context.Context, d ledger.BalanceDelta) (ledger.AccountBalance, error) {
	key := balanceKey{d.AccountID, d.PeriodID}
	b, ok := t.s.balances[key]
	if !ok {
		prior, err := t.s.sum(d.AccountID, ledger.Window{Before: d.PeriodStart})
		if err != nil {
			return ledger.AccountBalance{}, err
		}
		opening := shared.SignedBalance(d.NormalBalance, prior.Debit, prior.Credit)
		b = ledger.AccountBalance{
			AccountID:       d.AccountID,
			PeriodID:        d.PeriodID,
			OpeningBalance:  opening,
			DebitMovements:  decimal.Zero,
			CreditMovements: decimal.Zero,
			ClosingBalance:  opening,
		}
	}
	b.DebitMovements = b.DebitMovements.Add(d.Debit)
	b.CreditMovements = b.CreditMovements.Add(d.Credit)
	b.ClosingBalance = b.ClosingBalance.Add(d.Signed())
	b.LastUpdated = time.Now()
	t.s.balances[key] = b
	return b, nil
}

func (t txView) SumMovements(ctx context.Context, accountID int64, window ledger.Window) (ledger.Movement, error) {
	return t.s.sum(accountID, window)
}

func (t txView) ReplaceBalance(ctx context.Context, b ledger.AccountBalance) (ledger.AccountBalance, error) {
	b.LastUpdated = time.Now()
	t.s.balances[balanceKey{b.AccountID, b.PeriodID}] = b
	return b, nil
}

// Periods is an in-memory period calendar.
type Periods map[int64]periods.Period

func (p Periods) Get(ctx context.Context, id int64) (periods.Period, error) {
	period, ok := p[id]
	if !ok {
		return periods.Period{}, shared.Wrap(shared.ErrPeriodNotFound, "period %d", id)
	}
	return period, nil
}

func (p Periods) FindByDate(ctx context.Context, date time.Time) (periods.Period, error) {
	day := shared.DateOf(date)
	for _, period := range p.sorted() {
		if period.Contains(day) {
			return period, nil
		}
	}
	return periods.Period{}, shared.Wrap(shared.ErrPeriodNotFound, "no period covers %s", day.Format(shared.DateLayout))
}

func (p Periods) NextOpenAfter(ctx context.Context, date time.Time) (periods.Period, error) {
	day := shared.DateOf(date)
	for _, period := range p.sorted() {
		if period.IsOpen() && !period.StartDate.Before(day) {
			return period, nil
		}
	}
	return periods.Period{}, shared.Wrap(shared.ErrPeriodNotFound, "no open period after %s", day.Format(shared.DateLayout))
}

func (p Periods) sorted() []periods.Period {
	out := make([]periods.Period, 0, len(p))
	for _, period := range p {
		out = append(out, period)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

// Month returns an open calendar-month period.
func Month(id int64, year int, month time.Month) periods.Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return periods.Period{
		ID:        id,
		Code:      start.Format("2006-01"),
		StartDate: start,
		EndDate:   start.AddDate(0, 1, -1),
		Status:    periods.PeriodStatusOpen,
	}
}

// Accounts is an in-memory account directory.
type Accounts map[int64]accounts.Account

// Add registers a postable, active account with the default normal side of its type.
func (a Accounts) Add(id int64, code, name string, typ accounts.AccountType) accounts.Account {
	acc := accounts.Account{
		ID:            id,
		Code:          code,
		Name:          name,
		Type:          typ,
		NormalBalance: typ.DefaultNormalBalance(),
		Class:         accounts.ClassOf(code),
		AllowsPosting: true,
		IsActive:      true,
		Path:          code,
		Level:         1,
	}
	a[id] = acc
	return acc
}

func (a Accounts) Get(ctx context.Context, id int64) (accounts.Account, error) {
	acc, ok := a[id]
	if !ok {
		return accounts.Account{}, shared.Wrap(shared.ErrAccountNotFound, "account %d", id)
	}
	return acc, nil
}

func (a Accounts) Lookup(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if acc, ok := a[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (a Accounts) List(ctx context.Context) ([]accounts.Account, error) {
	out := make([]accounts.Account, 0, len(a))
	for _, acc := range a {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (a Accounts) ListPostable(ctx context.Context) ([]accounts.Account, error) {
	all, _ := a.List(ctx)
	out := all[:0]
	for _, acc := range all {
		if acc.AllowsPosting {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (a Accounts) GetByCode(ctx context.Context, code string) (accounts.Account, error) {
	for _, acc := range a {
		if acc.Code == code {
			return acc, nil
		}
	}
	return accounts.Account{}, shared.Wrap(shared.ErrAccountNotFound, "account %s", code)
}

// Insert assigns the next free id.
func (a Accounts) Insert(ctx context.Context, acc accounts.Account) (accounts.Account, error) {
	if _, err := a.GetByCode(ctx, acc.Code); err == nil {
		return accounts.Account{}, shared.ErrDuplicateAccount
	}
	for id := range a {
		if id > acc.ID {
			acc.ID = id
		}
	}
	acc.ID++
	a[acc.ID] = acc
	return acc, nil
}

func (a Accounts) SetActive(ctx context.Context, id int64, active bool) error {
	acc, ok := a[id]
	if !ok {
		return shared.Wrap(shared.ErrAccountNotFound, "account %d", id)
	}
	acc.IsActive = active
	a[id] = acc
	return nil
}
