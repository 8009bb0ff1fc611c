package wtb

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type memoryRepo struct {
	items    map[int64]WorkingTrialBalance
	seq      map[int]int64
	nextID   int64
	failNext error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]WorkingTrialBalance{}, seq: map[int]int64{}}
}

func clone(w WorkingTrialBalance) WorkingTrialBalance {
	w.Columns = append([]Column(nil), w.Columns...)
	lines := make([]Line, len(w.Lines))
	for i, l := range w.Lines {
		l.Adjustments = append([]Adjustment(nil), l.Adjustments...)
		lines[i] = l
	}
	w.Lines = lines
	return w
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (WorkingTrialBalance, error) {
	w, ok := m.items[id]
	if !ok {
		return WorkingTrialBalance{}, shared.Wrap(shared.ErrWTBNotFound, "wtb %d", id)
	}
	return clone(w), nil
}

func (m *memoryRepo) List(ctx context.Context, f ListFilter) ([]WorkingTrialBalance, int, error) {
	var out []WorkingTrialBalance
	for _, w := range m.items {
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		w.Lines, w.Columns = nil, nil
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	items := make(map[int64]WorkingTrialBalance, len(m.items))
	for k, v := range m.items {
		items[k] = clone(v)
	}
	seq := make(map[int]int64, len(m.seq))
	for k, v := range m.seq {
		seq[k] = v
	}
	if err := fn(ctx, &memoryTx{m}); err != nil {
		m.items, m.seq = items, seq
		return err
	}
	return nil
}

type memoryTx struct {
	m *memoryRepo
}

func (t *memoryTx) NextSequence(ctx context.Context, orgID int64, year int) (int64, error) {
	t.m.seq[year]++
	return t.m.seq[year], nil
}

func (t *memoryTx) Insert(ctx context.Context, w WorkingTrialBalance) (WorkingTrialBalance, error) {
	t.m.nextID++
	w.ID = t.m.nextID
	for i := range w.Lines {
		t.m.nextID++
		w.Lines[i].ID = t.m.nextID
		w.Lines[i].WTBID = w.ID
	}
	t.m.items[w.ID] = clone(w)
	return w, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (WorkingTrialBalance, error) {
	return t.m.Get(ctx, id)
}

func (t *memoryTx) InsertColumn(ctx context.Context, c Column) (Column, error) {
	t.m.nextID++
	c.ID = t.m.nextID
	w := t.m.items[c.WTBID]
	w.Columns = append(w.Columns, c)
	t.m.items[c.WTBID] = w
	return c, nil
}

func (t *memoryTx) UpdateLine(ctx context.Context, l Line) error {
	if err := t.m.failNext; err != nil {
		t.m.failNext = nil
		return err
	}
	w := t.m.items[l.WTBID]
	for i := range w.Lines {
		if w.Lines[i].ID == l.ID {
			w.Lines[i] = l
		}
	}
	t.m.items[l.WTBID] = w
	return nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, w WorkingTrialBalance) error {
	cur := t.m.items[w.ID]
	cur.Status, cur.LockedAt, cur.LockedBy = w.Status, w.LockedAt, w.LockedBy
	t.m.items[w.ID] = cur
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, id int64) error {
	delete(t.m.items, id)
	return nil
}

type auditSpy struct {
	logs []internalShared.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func amt(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type env struct {
	svc   *Service
	repo  *memoryRepo
	audit *auditSpy
	store *ledgertest.Store
}

func newEnv() *env {
	periods := ledgertest.Periods{1: ledgertest.Month(1, 2024, time.January)}
	accs := ledgertest.Accounts{}
	accs.Add(1, "100", "Kasa", accounts.AccountTypeAsset)
	accs.Add(2, "201", "Rozrachunki z dostawcami", accounts.AccountTypeLiability)
	accs.Add(3, "401", "Zużycie materiałów", accounts.AccountTypeExpense)
	accs.Add(4, "700", "Przychody ze sprzedaży", accounts.AccountTypeRevenue)
	store := ledgertest.NewStore(periods)
	d := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	store.Append(
		ledger.Record{AccountID: 1, PeriodID: 1, EntryDate: d, Debit: amt("1000")},
		ledger.Record{AccountID: 4, PeriodID: 1, EntryDate: d, Credit: amt("1000")},
		ledger.Record{AccountID: 3, PeriodID: 1, EntryDate: d, Debit: amt("200")},
		ledger.Record{AccountID: 2, PeriodID: 1, EntryDate: d, Credit: amt("200")},
	)
	tb := reports.NewService(ledger.NewAggregator(store, accs, periods), accs)
	repo := newMemoryRepo()
	audit := &auditSpy{}
	svc := NewService(repo, tb, periods, audit)
	svc.WithNow(func() time.Time { return time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC) })
	return &env{svc: svc, repo: repo, audit: audit, store: store}
}

func (e *env) createWithColumn(t *testing.T) (WorkingTrialBalance, Column) {
	t.Helper()
	w, err := e.svc.Create(context.Background(), CreateInput{Name: "Zamknięcie 01/2024", PeriodID: 1, ActorID: 5})
	require.NoError(t, err)
	col, err := e.svc.AddColumn(context.Background(), ColumnInput{WTBID: w.ID, Name: "Korekty audytora", ActorID: 5})
	require.NoError(t, err)
	return w, col
}

func lineOf(w WorkingTrialBalance, accountID int64) Line {
	for _, l := range w.Lines {
		if l.AccountID == accountID {
			return l
		}
	}
	return Line{}
}

func TestCreateSnapshotsTrialBalance(t *testing.T) {
	e := newEnv()
	w, err := e.svc.Create(context.Background(), CreateInput{Name: "TB", PeriodID: 1})
	require.NoError(t, err)
	require.Equal(t, "WTB-2024-001", w.Code)
	require.Equal(t, StatusDraft, w.Status)
	require.Len(t, w.Lines, 4)
	cash := lineOf(w, 1)
	require.True(t, cash.UnadjustedDebit.Equal(amt("1000")))
	require.True(t, cash.AdjustedDebit.Equal(cash.UnadjustedDebit))
	require.Empty(t, cash.Adjustments)

	second, err := e.svc.Create(context.Background(), CreateInput{Name: "TB 2", PeriodID: 1})
	require.NoError(t, err)
	require.Equal(t, "WTB-2024-002", second.Code)

	sum, err := e.svc.Summary(context.Background(), w.ID)
	require.NoError(t, err)
	require.True(t, sum.IsBalanced)
	require.True(t, sum.Unadjusted.Debit.Equal(amt("1200")))

	_, err = e.svc.Create(context.Background(), CreateInput{Name: "TB", PeriodID: 9})
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestRecordAdjustmentRecomputesAdjustedColumns(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	w, col := e.createWithColumn(t)

	line, err := e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: w.ID, ColumnID: col.ID, AccountID: 3, Amount: amt("150"), Reference: "AJ-1"})
	require.NoError(t, err)
	require.True(t, line.AdjustedDebit.Equal(amt("350")))

	line, err = e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: w.ID, ColumnID: col.ID, AccountID: 2, Amount: amt("-150")})
	require.NoError(t, err)
	require.True(t, line.AdjustedCredit.Equal(amt("350")))
	require.True(t, line.AdjustedDebit.IsZero())

	line, err = e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: w.ID, ColumnID: col.ID, AccountID: 3, Amount: amt("100")})
	require.NoError(t, err)
	require.Len(t, line.Adjustments, 1)
	require.True(t, line.AdjustedDebit.Equal(amt("300")))

	stored, err := e.svc.Get(ctx, w.ID)
	require.NoError(t, err)
	for _, l := range stored.Lines {
		got := l.AdjustedDebit.Sub(l.AdjustedCredit)
		want := l.UnadjustedDebit.Sub(l.UnadjustedCredit).Add(l.AdjustmentTotal())
		require.True(t, got.Equal(want), "account %d", l.AccountID)
	}

	sum, err := e.svc.Summary(ctx, w.ID)
	require.NoError(t, err)
	require.False(t, sum.IsBalanced)
	require.True(t, sum.Difference.Equal(amt("-50")))
	require.Equal(t, 2, sum.AdjustmentCount)
}

func TestRecordAdjustmentCrossesSides(t *testing.T) {
	l := Line{UnadjustedDebit: amt("100"), UnadjustedCredit: decimal.Zero, Adjustments: []Adjustment{{ColumnID: 1, Amount: amt("-250")}}}
	l.Recompute()
	require.True(t, l.AdjustedDebit.IsZero())
	require.True(t, l.AdjustedCredit.Equal(amt("150")))

	l.Adjustments = upsertAdjustment(l.Adjustments, Adjustment{ColumnID: 1, Amount: decimal.Zero})
	l.Recompute()
	require.Empty(t, l.Adjustments)
	require.True(t, l.AdjustedDebit.Equal(amt("100")))
}

func TestRecordAdjustmentErrors(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	w, col := e.createWithColumn(t)

	_, err := e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: w.ID, ColumnID: col.ID, AccountID: 99, Amount: amt("1")})
	require.ErrorIs(t, err, shared.ErrLineNotFound)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))

	_, err = e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: w.ID, ColumnID: 12345, AccountID: 1, Amount: amt("1")})
	require.ErrorIs(t, err, shared.ErrColumnNotFound)

	_, err = e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: 777, ColumnID: col.ID, AccountID: 1, Amount: amt("1")})
	require.ErrorIs(t, err, shared.ErrWTBNotFound)

	_, err = e.svc.AddColumn(ctx, ColumnInput{WTBID: w.ID, Name: "x", Type: "OTHER"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLockIsOneDirectional(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	w, col := e.createWithColumn(t)

	res, err := e.svc.Lock(ctx, w.ID, 8)
	require.NoError(t, err)
	require.True(t, res.IsBalanced)
	require.Empty(t, res.Warning)
	require.Equal(t, StatusLocked, res.WTB.Status)
	require.EqualValues(t, 8, *res.WTB.LockedBy)

	_, err = e.svc.Lock(ctx, w.ID, 8)
	require.ErrorIs(t, err, shared.ErrWTBLocked)
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))

	_, err = e.svc.AddColumn(ctx, ColumnInput{WTBID: w.ID, Name: "late"})
	require.ErrorIs(t, err, shared.ErrWTBLocked)

	_, err = e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: w.ID, ColumnID: col.ID, AccountID: 1, Amount: amt("1")})
	require.ErrorIs(t, err, shared.ErrWTBLocked)

	require.ErrorIs(t, e.svc.Delete(ctx, w.ID, 8), shared.ErrWTBLocked)
	_, err = e.svc.Get(ctx, w.ID)
	require.NoError(t, err)
}

func TestLockOutOfBalanceWarns(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	w, col := e.createWithColumn(t)
	_, err := e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: w.ID, ColumnID: col.ID, AccountID: 1, Amount: amt("75")})
	require.NoError(t, err)

	res, err := e.svc.Lock(ctx, w.ID, 8)
	require.NoError(t, err)
	require.False(t, res.IsBalanced)
	require.NotEmpty(t, res.Warning)
	require.True(t, res.Difference.Equal(amt("75")))

	last := e.audit.logs[len(e.audit.logs)-1]
	require.Equal(t, "wtb.lock", last.Action)
	require.Equal(t, true, last.Meta["out_of_balance"])
}

func TestDeleteDraft(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	w, _ := e.createWithColumn(t)
	require.NoError(t, e.svc.Delete(ctx, w.ID, 1))
	_, err := e.svc.Get(ctx, w.ID)
	require.ErrorIs(t, err, shared.ErrWTBNotFound)
}

func TestFailedUpdateRollsBack(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	w, col := e.createWithColumn(t)
	e.repo.failNext = context.DeadlineExceeded

	_, err := e.svc.RecordAdjustment(ctx, AdjustmentInput{WTBID: w.ID, ColumnID: col.ID, AccountID: 1, Amount: amt("5")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	stored, err := e.svc.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Empty(t, lineOf(stored, 1).Adjustments)
}

func TestList(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	a, _ := e.createWithColumn(t)
	_, _ = e.createWithColumn(t)
	_, err := e.svc.Lock(ctx, a.ID, 1)
	require.NoError(t, err)

	res, err := e.svc.List(ctx, ListFilter{Status: StatusDraft})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Equal(t, "WTB-2024-002", res.Items[0].Code)
}
