package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type fixture struct {
	store *ledgertest.Store
	agg   *ledger.Aggregator
	cli   *LedgerOpsCLI
	queue *stubQueue
}

type stubQueue struct {
	payloads []jobs.RecalcPayload
}

func (q *stubQueue) Enqueue(_ context.Context, payload jobs.RecalcPayload) (string, error) {
	q.payloads = append(q.payloads, payload)
	return "task-1", nil
}

func newFixture(debit, credit string) *fixture {
	periods := ledgertest.Periods{1: ledgertest.Month(1, 2024, time.March)}
	list := ledgertest.Accounts{}
	list.Add(1, "130", "Rachunek bieżący", accounts.AccountTypeAsset)
	list.Add(2, "202", "Rozrachunki z dostawcami", accounts.AccountTypeLiability)
	store := ledgertest.NewStore(periods)
	d := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	store.Append(
		ledger.Record{AccountID: 1, PeriodID: 1, EntryDate: d, Debit: decimal.RequireFromString(debit), Credit: decimal.Zero},
		ledger.Record{AccountID: 2, PeriodID: 1, EntryDate: d, Debit: decimal.Zero, Credit: decimal.RequireFromString(credit)},
	)
	agg := ledger.NewAggregator(store, list, periods)
	queue := &stubQueue{}
	c := NewLedgerOpsCLI(reports.NewService(agg, list), agg, queue)
	c.now = func() time.Time { return time.Date(2024, time.March, 31, 12, 0, 0, 0, time.UTC) }
	return &fixture{store: store, agg: agg, cli: c, queue: queue}
}

func TestTrialBalanceCommandJSONBalanced(t *testing.T) {
	f := newFixture("1200.50", "1200.50")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := f.cli.TrialBalanceCommand(context.Background(), TBCheckOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var summary TBCheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.Balanced)
	require.Equal(t, "2024-03-31", summary.AsOf)
	require.Equal(t, "1200.50", summary.Debit)
	require.Equal(t, "0.00", summary.Difference)
}

func TestTrialBalanceCommandUnbalanced(t *testing.T) {
	f := newFixture("100", "90")
	stdout := new(bytes.Buffer)

	code := f.cli.TrialBalanceCommand(context.Background(), TBCheckOptions{AsOf: "2024-03-31", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitUnbalanced, code)
	require.Contains(t, stdout.String(), "Difference")
}

func TestTrialBalanceCommandInvalidDate(t *testing.T) {
	f := newFixture("1", "1")
	stderr := new(bytes.Buffer)

	code := f.cli.TrialBalanceCommand(context.Background(), TBCheckOptions{AsOf: "31.03.2024", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "invalid date")
}

func TestRecalcCommandInProcess(t *testing.T) {
	f := newFixture("75", "75")
	stdout := new(bytes.Buffer)

	code := f.cli.RecalcCommand(context.Background(), RecalcOptions{PeriodID: 1, Accounts: "1", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "1 accounts recalculated")

	bal, ok := f.store.Balance(1, 1)
	require.True(t, ok)
	require.True(t, bal.ClosingBalance.Equal(decimal.NewFromInt(75)))
	_, ok = f.store.Balance(2, 1)
	require.False(t, ok)
}

func TestRecalcCommandAsyncEnqueues(t *testing.T) {
	f := newFixture("75", "75")
	stdout := new(bytes.Buffer)

	code := f.cli.RecalcCommand(context.Background(), RecalcOptions{PeriodID: 1, Accounts: "1, 2", Async: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Len(t, f.queue.payloads, 1)
	require.Equal(t, []int64{1, 2}, f.queue.payloads[0].AccountIDs)
	require.Contains(t, stdout.String(), "task-1")
}

func TestRecalcCommandValidatesFlags(t *testing.T) {
	f := newFixture("1", "1")
	stderr := new(bytes.Buffer)

	require.Equal(t, 1, f.cli.RecalcCommand(context.Background(), RecalcOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "--period")

	stderr.Reset()
	require.Equal(t, 1, f.cli.RecalcCommand(context.Background(), RecalcOptions{PeriodID: 1, Accounts: "1,x", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "invalid account id")
}
