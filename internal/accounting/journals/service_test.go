package journals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type seqKey struct {
	org   int64
	typ   EntryType
	year  int
	month int
}

type memoryRepo struct {
	ledger   *ledgertest.Store
	entries  map[int64]JournalEntry
	seq      map[seqKey]int64
	links    map[string]int64
	nextID   int64
	nextLine int64
}

func newMemoryRepo(store *ledgertest.Store) *memoryRepo {
	return &memoryRepo{
		ledger:  store,
		entries: make(map[int64]JournalEntry),
		seq:     make(map[seqKey]int64),
		links:   make(map[string]int64),
	}
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (JournalEntry, error) {
	e, ok := r.entries[id]
	if !ok {
		return JournalEntry{}, shared.Wrap(shared.ErrEntryNotFound, "entry %d", id)
	}
	e.Lines = append([]JournalLine(nil), e.Lines...)
	return e, nil
}

func (r *memoryRepo) Query(ctx context.Context, q Query) ([]JournalEntry, int, error) {
	var out []JournalEntry
	for _, e := range r.entries {
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		if q.EntryType != "" && e.EntryType != q.EntryType {
			continue
		}
		if q.Search != "" && !strings.Contains(e.Description, q.Search) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	pg := internalShared.NewPagination(q.Page, q.PerPage, total)
	start, end := pg.Window()
	return out[start:end], total, nil
}

func (r *memoryRepo) Statistics(ctx context.Context, f StatsFilter) (Statistics, error) {
	var rows []statRow
	for _, e := range r.entries {
		rows = append(rows, statRow{status: e.Status, entryType: e.EntryType, count: 1, debit: e.TotalDebit, credit: e.TotalCredit})
	}
	return foldStatistics(rows), nil
}

func (r *memoryRepo) PeekSequence(ctx context.Context, orgID int64, t EntryType, year, month int) (int64, error) {
	return r.seq[seqKey{orgID, t, year, month}] + 1, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	entries := make(map[int64]JournalEntry, len(r.entries))
	for k, v := range r.entries {
		entries[k] = v
	}
	seq := make(map[seqKey]int64, len(r.seq))
	for k, v := range r.seq {
		seq[k] = v
	}
	links := make(map[string]int64, len(r.links))
	for k, v := range r.links {
		links[k] = v
	}
	err := r.ledger.WithTx(ctx, func(ctx context.Context, lt ledger.TxStore) error {
		return fn(ctx, &memoryTx{TxStore: lt, repo: r})
	})
	if err != nil {
		r.entries, r.seq, r.links = entries, seq, links
	}
	return err
}

type memoryTx struct {
	ledger.TxStore
	repo *memoryRepo
}

func (t *memoryTx) NextSequence(ctx context.Context, orgID int64, typ EntryType, year, month int) (int64, error) {
	k := seqKey{orgID, typ, year, month}
	t.repo.seq[k]++
	return t.repo.seq[k], nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	lines, _ := t.ReplaceLines(ctx, e.ID, e.Lines)
	e.Lines = lines
	t.repo.entries[e.ID] = e
	return e, nil
}

func (t *memoryTx) ReplaceLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, l := range lines {
		t.repo.nextLine++
		l.ID = t.repo.nextLine
		l.EntryID = entryID
		out = append(out, l)
	}
	if e, ok := t.repo.entries[entryID]; ok {
		e.Lines = out
		t.repo.entries[entryID] = e
	}
	return out, nil
}

func (t *memoryTx) UpdateEntry(ctx context.Context, e JournalEntry) error {
	if _, ok := t.repo.entries[e.ID]; !ok {
		return shared.ErrEntryNotFound
	}
	t.repo.entries[e.ID] = e
	return nil
}

func (t *memoryTx) DeleteEntry(ctx context.Context, id int64) error {
	delete(t.repo.entries, id)
	return nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	key := module + ":" + ref.String()
	if _, ok := t.repo.links[key]; ok {
		return shared.Wrap(shared.ErrSourceAlreadyLinked, "%s", key)
	}
	t.repo.links[key] = entryID
	return nil
}

type auditSpy struct {
	logs []internalShared.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditSpy) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type approvalSpy struct {
	logs []internalShared.ApprovalLog
}

func (a *approvalSpy) Record(ctx context.Context, log internalShared.ApprovalLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type cacheSpy struct {
	calls int
	err   error
}

func (c *cacheSpy) Invalidate(ctx context.Context, orgID int64, kinds ...string) error {
	c.calls++
	return c.err
}

type observerSpy struct {
	posted int
	failed []string
}

func (o *observerSpy) EntryPosted(entryType string, lines int) { o.posted++ }
func (o *observerSpy) PostingFailed(code string)               { o.failed = append(o.failed, code) }

type env struct {
	svc       *Service
	repo      *memoryRepo
	store     *ledgertest.Store
	periods   ledgertest.Periods
	accounts  ledgertest.Accounts
	audit     *auditSpy
	approvals *approvalSpy
	cache     *cacheSpy
	observer  *observerSpy
	cash      accounts.Account
	bank      accounts.Account
	revenue   accounts.Account
}

func newEnv() *env {
	e := &env{
		periods: ledgertest.Periods{
			1: ledgertest.Month(1, 2024, time.January),
			2: ledgertest.Month(2, 2024, time.February),
		},
		accounts:  ledgertest.Accounts{},
		audit:     &auditSpy{},
		approvals: &approvalSpy{},
		cache:     &cacheSpy{},
		observer:  &observerSpy{},
	}
	e.cash = e.accounts.Add(1, "100", "Kasa", accounts.AccountTypeAsset)
	e.bank = e.accounts.Add(2, "130", "Rachunek bankowy", accounts.AccountTypeAsset)
	e.revenue = e.accounts.Add(3, "700", "Przychody ze sprzedaży", accounts.AccountTypeRevenue)
	e.store = ledgertest.NewStore(e.periods)
	e.repo = newMemoryRepo(e.store)
	e.svc = NewService(e.repo, e.accounts, e.periods, e.audit)
	e.svc.WithApprovals(e.approvals)
	e.svc.WithCache(e.cache)
	e.svc.WithObserver(e.observer)
	e.svc.WithNow(func() time.Time { return time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC) })
	return e
}

func amt(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func date(s string) time.Time {
	t, _ := time.Parse(shared.DateLayout, s)
	return t
}

func dr(acc accounts.Account, v string) LineInput {
	return LineInput{AccountID: acc.ID, Debit: amt(v)}
}

func cr(acc accounts.Account, v string) LineInput {
	return LineInput{AccountID: acc.ID, Credit: amt(v)}
}

func (e *env) create(t *testing.T, day string, lines ...LineInput) JournalEntry {
	t.Helper()
	entry, err := e.svc.Create(context.Background(), CreateInput{EntryDate: date(day), Description: "test", ActorID: 7, Lines: lines})
	require.NoError(t, err)
	return entry
}

func TestCreateDraftNumbersAndTotals(t *testing.T) {
	e := newEnv()
	first := e.create(t, "2024-01-15", dr(e.cash, "1000"), cr(e.bank, "1000"))
	second := e.create(t, "2024-01-20", dr(e.cash, "0.10"), dr(e.cash, "0.20"), cr(e.bank, "0.30"))

	require.Equal(t, StatusDraft, first.Status)
	require.Equal(t, "JE/2024/01/0001", first.EntryNumber)
	require.Equal(t, "JE/2024/01/0002", second.EntryNumber)
	require.EqualValues(t, 1, first.PeriodID)
	require.True(t, first.TotalDebit.Equal(first.TotalCredit))
	require.True(t, second.TotalDebit.Equal(amt("0.30")))
	require.Len(t, second.Lines, 3)
	require.Equal(t, 3, second.Lines[2].LineNumber)
	require.Equal(t, "PLN", second.Lines[0].Currency)
	require.Equal(t, []string{"journal.create", "journal.create"}, e.audit.actions())
	require.Equal(t, 2, e.cache.calls)
}

func TestCreateRejectsUnbalanced(t *testing.T) {
	e := newEnv()
	_, err := e.svc.Create(context.Background(), CreateInput{EntryDate: date("2024-01-15"), Lines: []LineInput{dr(e.cash, "1000"), cr(e.bank, "500")}})
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.Equal(t, shared.KindUnbalanced, shared.KindOf(err))
	require.Empty(t, e.repo.entries)
	require.Empty(t, e.store.Records())
}

func TestCreateValidationOrder(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, err := e.svc.Create(ctx, CreateInput{EntryDate: date("2023-12-31"), Lines: []LineInput{dr(e.cash, "1"), cr(e.bank, "1")}})
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)

	closed := e.periods[2]
	closed.Status = periods.PeriodStatusClosed
	e.periods[2] = closed
	_, err = e.svc.Create(ctx, CreateInput{EntryDate: date("2024-02-10"), Lines: []LineInput{dr(e.cash, "1"), cr(e.bank, "1")}})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	_, err = e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-10"), Lines: []LineInput{dr(e.cash, "1"), {AccountID: 99, Credit: amt("1")}}})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
	require.Contains(t, err.Error(), "line 2")

	inactive := e.accounts.Add(4, "131", "Stary rachunek", accounts.AccountTypeAsset)
	inactive.IsActive = false
	e.accounts[inactive.ID] = inactive
	_, err = e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-10"), Lines: []LineInput{dr(e.cash, "1"), cr(inactive, "1")}})
	require.ErrorIs(t, err, shared.ErrAccountInactive)

	header := e.accounts.Add(5, "010", "Środki trwałe", accounts.AccountTypeAsset)
	header.AllowsPosting = false
	e.accounts[header.ID] = header
	_, err = e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-10"), Lines: []LineInput{dr(header, "1"), cr(e.bank, "1")}})
	require.ErrorIs(t, err, shared.ErrAccountNotPostable)

	_, err = e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-10"), Lines: []LineInput{dr(e.cash, "1")}})
	require.ErrorIs(t, err, shared.ErrTooFewLines)

	_, err = e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-10"), Lines: []LineInput{{AccountID: e.cash.ID, Debit: amt("1"), Credit: amt("1")}, cr(e.bank, "1")}})
	require.ErrorIs(t, err, shared.ErrInvalidLine)
}

func TestDeactivatedAccountRejectsNewEntries(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	chart := accounts.NewService(e.accounts, e.audit)

	e.create(t, "2024-01-10", dr(e.cash, "50"), cr(e.bank, "50"))
	require.NoError(t, chart.Deactivate(ctx, e.bank.ID, 7))

	last := e.audit.logs[len(e.audit.logs)-1]
	require.Equal(t, "account.deactivate", last.Action)
	require.Equal(t, "2", last.EntityID)
	require.EqualValues(t, 7, last.ActorID)
	require.False(t, e.accounts[e.bank.ID].IsActive)

	_, err := e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-11"), Lines: []LineInput{dr(e.cash, "10"), cr(e.bank, "10")}})
	require.ErrorIs(t, err, shared.ErrAccountInactive)
	require.Contains(t, err.Error(), "line 2")
	require.Len(t, e.repo.entries, 1)
}

func TestCreateConvertsForeignCurrencyToBase(t *testing.T) {
	e := newEnv()
	entry, err := e.svc.Create(context.Background(), CreateInput{
		EntryDate: date("2024-01-10"),
		Lines: []LineInput{
			{AccountID: e.cash.ID, Debit: amt("100"), Currency: "eur", ExchangeRate: amt("4.3215")},
			{AccountID: e.revenue.ID, Credit: amt("432.15")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "EUR", entry.Lines[0].Currency)
	require.True(t, entry.Lines[0].BaseDebitAmount.Equal(amt("432.15")))
	require.True(t, entry.TotalDebit.Equal(amt("432.15")))

	_, err = e.svc.Create(context.Background(), CreateInput{
		EntryDate: date("2024-01-10"),
		Lines: []LineInput{
			{AccountID: e.cash.ID, Debit: amt("100"), Currency: "EUR", ExchangeRate: amt("4.30")},
			{AccountID: e.revenue.ID, Credit: amt("100")},
		},
	})
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	_, err = e.svc.Create(context.Background(), CreateInput{
		EntryDate: date("2024-01-10"),
		Lines:     []LineInput{{AccountID: e.cash.ID, Debit: amt("1"), Currency: "XYZW"}, cr(e.revenue, "1")},
	})
	require.ErrorIs(t, err, shared.ErrInvalidLine)
}

func TestCreateRejectsAmountsBeyondColumnScale(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, err := e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-10"), Lines: []LineInput{dr(e.cash, "0.00001"), cr(e.bank, "0.00001")}})
	require.ErrorIs(t, err, shared.ErrInvalidLine)
	require.Contains(t, err.Error(), "line 1")

	_, err = e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-10"), Lines: []LineInput{dr(e.cash, "10000000000000000"), cr(e.bank, "10000000000000000")}})
	require.ErrorIs(t, err, shared.ErrInvalidLine)

	_, err = e.svc.Create(ctx, CreateInput{
		EntryDate: date("2024-01-10"),
		Lines: []LineInput{
			{AccountID: e.cash.ID, Debit: amt("100"), Currency: "EUR", ExchangeRate: amt("4.321512345")},
			{AccountID: e.revenue.ID, Credit: amt("432.15")},
		},
	})
	require.ErrorIs(t, err, shared.ErrInvalidLine)
	require.Contains(t, err.Error(), "exchange rate")

	entry, err := e.svc.Create(ctx, CreateInput{
		EntryDate: date("2024-01-10"),
		Lines: []LineInput{
			{AccountID: e.cash.ID, Debit: amt("100.12340"), Currency: "EUR", ExchangeRate: amt("4.32151234")},
			{AccountID: e.revenue.ID, Credit: amt("432.68")},
		},
	})
	require.NoError(t, err)
	require.True(t, entry.Lines[0].BaseDebitAmount.Equal(amt("432.68")))
	require.Empty(t, e.store.Records())
}

func TestCreateRejectsDuplicateSourceLink(t *testing.T) {
	e := newEnv()
	src := uuid.New()
	in := CreateInput{EntryDate: date("2024-01-10"), SourceModule: "recurring", SourceID: &src, Lines: []LineInput{dr(e.cash, "5"), cr(e.bank, "5")}}
	_, err := e.svc.Create(context.Background(), in)
	require.NoError(t, err)
	_, err = e.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
	require.Len(t, e.repo.entries, 1)
}

func TestPostExampleScenario(t *testing.T) {
	e := newEnv()
	entry := e.create(t, "2024-01-15", dr(e.cash, "1000"), cr(e.bank, "1000"))

	posted, res, err := e.svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	require.EqualValues(t, 9, *posted.PostedBy)
	require.Equal(t, 2, res.RecordsCreated)
	require.Equal(t, 2, res.BalancesUpdated)
	require.Len(t, e.store.Records(), 2)
	require.Equal(t, 1, e.observer.posted)

	stored, _ := e.repo.Get(context.Background(), entry.ID)
	require.Equal(t, StatusPosted, stored.Status)

	_, _, err = e.svc.Post(context.Background(), PostInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))
	require.Len(t, e.store.Records(), 2)
}

func TestPostRejectsCorruptedUnbalancedEntry(t *testing.T) {
	e := newEnv()
	entry := e.create(t, "2024-01-15", dr(e.cash, "1000"), cr(e.bank, "1000"))
	stored := e.repo.entries[entry.ID]
	stored.Lines[1].CreditAmount = amt("500")
	stored.Lines[1].BaseCreditAmount = amt("500")
	e.repo.entries[entry.ID] = stored

	_, _, err := e.svc.Post(context.Background(), PostInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.Empty(t, e.store.Records())
	require.Equal(t, StatusDraft, e.repo.entries[entry.ID].Status)
	require.Equal(t, []string{"UNBALANCED_ENTRY"}, e.observer.failed)
}

func TestPostRejectsPeriodClosedSinceCreation(t *testing.T) {
	e := newEnv()
	entry := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))
	closed := e.periods[1]
	closed.Status = periods.PeriodStatusClosed
	e.periods[1] = closed

	_, _, err := e.svc.Post(context.Background(), PostInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	require.Empty(t, e.store.Records())
}

func TestApprovalFlow(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	entry, err := e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-15"), RequiresApproval: true, Lines: []LineInput{dr(e.cash, "10"), cr(e.bank, "10")}})
	require.NoError(t, err)

	_, _, err = e.svc.Post(ctx, PostInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrApprovalRequired)

	pending, err := e.svc.SubmitForApproval(ctx, entry.ID, 7, "please review")
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, pending.Status)

	_, err = e.svc.Update(ctx, UpdateInput{EntryID: entry.ID, Description: ptr("changed")})
	require.ErrorIs(t, err, shared.ErrEntryNotEditable)

	approved, err := e.svc.Approve(ctx, entry.ID, 8, "ok")
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAt)
	require.Equal(t, StatusPendingApproval, approved.Status)
	require.Len(t, e.approvals.logs, 2)
	require.Equal(t, internalShared.ApprovalApprove, e.approvals.logs[1].Action)
	require.Equal(t, entry.RefID, e.approvals.logs[1].RefID)

	posted, _, err := e.svc.Post(ctx, PostInput{EntryID: entry.ID})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
}

func TestPostBypassApproval(t *testing.T) {
	e := newEnv()
	entry, err := e.svc.Create(context.Background(), CreateInput{EntryDate: date("2024-01-15"), RequiresApproval: true, Lines: []LineInput{dr(e.cash, "10"), cr(e.bank, "10")}})
	require.NoError(t, err)
	_, _, err = e.svc.Post(context.Background(), PostInput{EntryID: entry.ID, BypassApproval: true})
	require.NoError(t, err)
}

func ptr[T any](v T) *T { return &v }

func TestUpdateRevalidatesAndMovesPeriod(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	entry := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))

	_, err := e.svc.Update(ctx, UpdateInput{EntryID: entry.ID, Lines: []LineInput{dr(e.cash, "10"), cr(e.bank, "9")}})
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.True(t, e.repo.entries[entry.ID].TotalDebit.Equal(amt("10")))

	updated, err := e.svc.Update(ctx, UpdateInput{EntryID: entry.ID, EntryDate: ptr(date("2024-02-03")), Lines: []LineInput{dr(e.cash, "25"), cr(e.revenue, "25")}})
	require.NoError(t, err)
	require.EqualValues(t, 2, updated.PeriodID)
	require.Equal(t, "JE/2024/02/0001", updated.EntryNumber)
	require.True(t, updated.TotalCredit.Equal(amt("25")))
	require.Equal(t, e.revenue.ID, updated.Lines[1].AccountID)

	_, _, err = e.svc.Post(ctx, PostInput{EntryID: entry.ID})
	require.NoError(t, err)
	_, err = e.svc.Update(ctx, UpdateInput{EntryID: entry.ID, Description: ptr("late")})
	require.ErrorIs(t, err, shared.ErrEntryNotEditable)
}

func TestUpdateKeepsNumberWithinMonth(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	entry := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))
	e.create(t, "2024-02-01", dr(e.cash, "5"), cr(e.bank, "5"))

	same, err := e.svc.Update(ctx, UpdateInput{EntryID: entry.ID, EntryDate: ptr(date("2024-01-28"))})
	require.NoError(t, err)
	require.Equal(t, "JE/2024/01/0001", same.EntryNumber)

	moved, err := e.svc.Update(ctx, UpdateInput{EntryID: entry.ID, EntryDate: ptr(date("2024-02-10"))})
	require.NoError(t, err)
	require.Equal(t, "JE/2024/02/0002", moved.EntryNumber)
	require.Equal(t, "JE/2024/02/0002", e.repo.entries[entry.ID].EntryNumber)

	next := e.create(t, "2024-02-11", dr(e.cash, "1"), cr(e.bank, "1"))
	require.Equal(t, "JE/2024/02/0003", next.EntryNumber)
}

func TestDeleteOnlyDrafts(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	draft := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))
	posted := e.create(t, "2024-01-16", dr(e.cash, "10"), cr(e.bank, "10"))
	_, _, err := e.svc.Post(ctx, PostInput{EntryID: posted.ID})
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, draft.ID, 1))
	require.ErrorIs(t, e.svc.Delete(ctx, posted.ID, 1), shared.ErrEntryNotEditable)
	_, err = e.svc.Get(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrEntryNotFound)
}

func TestBulkPostCollectsPartialFailures(t *testing.T) {
	e := newEnv()
	ok1 := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))
	ok2 := e.create(t, "2024-01-16", dr(e.cash, "20"), cr(e.bank, "20"))

	res := e.svc.BulkPost(context.Background(), []int64{ok1.ID, 999, ok2.ID}, 1, false)
	require.False(t, res.Success)
	require.Equal(t, 2, res.Succeeded)
	require.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 3)
	require.False(t, res.Results[1].Success)
	require.Equal(t, "ENTRY_NOT_FOUND", res.Results[1].Code)
	require.Len(t, e.store.Records(), 4)
}

func TestBulkDelete(t *testing.T) {
	e := newEnv()
	a := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))
	b := e.create(t, "2024-01-16", dr(e.cash, "20"), cr(e.bank, "20"))
	res := e.svc.BulkDelete(context.Background(), []int64{a.ID, b.ID}, 1)
	require.True(t, res.Success)
	require.Empty(t, e.repo.entries)
}

func TestCopyCreatesNewDraft(t *testing.T) {
	e := newEnv()
	src := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))
	cp, err := e.svc.Copy(context.Background(), CopyInput{EntryID: src.ID, EntryDate: ptr(date("2024-02-01"))})
	require.NoError(t, err)
	require.NotEqual(t, src.ID, cp.ID)
	require.Equal(t, StatusDraft, cp.Status)
	require.Equal(t, "JE/2024/02/0001", cp.EntryNumber)
	require.Len(t, cp.Lines, 2)
	require.EqualValues(t, 2, cp.PeriodID)
}

func TestValidateReportsWithoutMutating(t *testing.T) {
	e := newEnv()
	entry := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))

	res, err := e.svc.Validate(context.Background(), entry.ID)
	require.NoError(t, err)
	require.True(t, res.IsValid)
	require.True(t, res.IsBalanced)
	require.True(t, res.CanPost)
	require.True(t, res.Difference.IsZero())
	require.Len(t, res.Warnings, 1)
	require.Equal(t, 2, res.Warnings[0].LineNumber)

	stored := e.repo.entries[entry.ID]
	stored.Lines[0].BaseDebitAmount = amt("12")
	e.repo.entries[entry.ID] = stored
	res, err = e.svc.Validate(context.Background(), entry.ID)
	require.NoError(t, err)
	require.False(t, res.IsBalanced)
	require.False(t, res.CanPost)
	require.True(t, res.Difference.Equal(amt("2")))
	require.Equal(t, StatusDraft, e.repo.entries[entry.ID].Status)
	require.Empty(t, e.store.Records())
}

func TestReverseSwapsSidesAndMarksOriginal(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	entry := e.create(t, "2024-01-15", dr(e.cash, "100"), cr(e.revenue, "100"))
	_, _, err := e.svc.Post(ctx, PostInput{EntryID: entry.ID})
	require.NoError(t, err)

	closed := e.periods[1]
	closed.Status = periods.PeriodStatusClosed
	e.periods[1] = closed

	rev, err := e.svc.Reverse(ctx, ReverseInput{EntryID: entry.ID, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, EntryTypeReversal, rev.EntryType)
	require.Equal(t, StatusPosted, rev.Status)
	require.Equal(t, "RV/2024/02/0001", rev.EntryNumber)
	require.EqualValues(t, 2, rev.PeriodID)
	require.True(t, rev.Lines[0].CreditAmount.Equal(amt("100")))
	require.Equal(t, entry.ID, *rev.ReversalOfID)

	orig, _ := e.svc.Get(ctx, entry.ID)
	require.Equal(t, StatusReversed, orig.Status)
	require.NotNil(t, orig.ReversedAt)
	require.Len(t, e.store.Records(), 4)

	_, err = e.svc.Reverse(ctx, ReverseInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestNextEntryNumberDoesNotAllocate(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	n, err := e.svc.NextEntryNumber(ctx, EntryTypeAdjustment, date("2024-01-05"))
	require.NoError(t, err)
	require.Equal(t, "AJ/2024/01/0001", n)
	n, err = e.svc.NextEntryNumber(ctx, EntryTypeAdjustment, date("2024-01-05"))
	require.NoError(t, err)
	require.Equal(t, "AJ/2024/01/0001", n)

	_, err = e.svc.Create(ctx, CreateInput{EntryDate: date("2024-01-05"), EntryType: EntryTypeAdjustment, Lines: []LineInput{dr(e.cash, "1"), cr(e.bank, "1")}})
	require.NoError(t, err)
	n, err = e.svc.NextEntryNumber(ctx, EntryTypeAdjustment, date("2024-01-25"))
	require.NoError(t, err)
	require.Equal(t, "AJ/2024/01/0002", n)
}

func TestStatisticsAndQuery(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e.create(t, "2024-01-15", dr(e.cash, fmt.Sprintf("%d", i+1)), cr(e.bank, fmt.Sprintf("%d", i+1)))
	}
	_, _, err := e.svc.Post(ctx, PostInput{EntryID: 1})
	require.NoError(t, err)

	st, err := e.svc.Statistics(ctx, StatsFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, st.Total)
	require.Equal(t, 2, st.ByStatus[StatusDraft])
	require.True(t, st.PostedDebitTotal.Equal(amt("1")))

	page, err := e.svc.Query(ctx, Query{Status: StatusDraft, PerPage: 1})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Entries, 1)
}

func TestCacheFailureDoesNotFailCaller(t *testing.T) {
	e := newEnv()
	e.cache.err = errors.New("redis down")
	entry := e.create(t, "2024-01-15", dr(e.cash, "10"), cr(e.bank, "10"))
	require.NotZero(t, entry.ID)
}
