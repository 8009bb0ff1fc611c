package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Store is the read side of the ledger plus transactional access.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	SumMovements(ctx context.Context, accountID int64, window Window) (Movement, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
	ListBalances(ctx context.Context, periodID int64, accountIDs []int64) ([]AccountBalance, error)
	AccountTotals(ctx context.Context, opts TotalsOptions) ([]Movement, error)
}

// AccountDirectory resolves chart of accounts metadata.
type AccountDirectory interface {
	Get(ctx context.Context, id int64) (accounts.Account, error)
	Lookup(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	ListPostable(ctx context.Context) ([]accounts.Account, error)
}

// PeriodLookup resolves periods by id.
type PeriodLookup interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// DefaultChunkSize bounds how many accounts a batch recalculation handles
// between context checks.
const DefaultChunkSize = 100

// Aggregator computes opening, movement and closing balances.
type Aggregator struct {
	store     Store
	accounts  AccountDirectory
	periods   PeriodLookup
	chunkSize int
	logger    *slog.Logger
}

// NewAggregator builds the balance aggregator.
func NewAggregator(store Store, accounts AccountDirectory, periods PeriodLookup) *Aggregator {
	return &Aggregator{store: store, accounts: accounts, periods: periods, chunkSize: DefaultChunkSize, logger: slog.Default()}
}

// WithChunkSize sets the batch recalculation chunk size.
func (a *Aggregator) WithChunkSize(n int) {
	if n > 0 {
		a.chunkSize = n
	}
}

func (a *Aggregator) WithLogger(logger *slog.Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// Totals exposes raw per-account movements to report builders.
func (a *Aggregator) Totals(ctx context.Context, opts TotalsOptions) ([]Movement, error) {
	return a.store.AccountTotals(ctx, opts)
}

// CalculateOpeningBalance sums movements strictly before periodStart, signed by
// the normal side. No movements yield zero.
func (a *Aggregator) CalculateOpeningBalance(ctx context.Context, accountID int64, normal shared.NormalBalance, periodStart time.Time) (decimal.Decimal, error) {
	m, err := a.store.SumMovements(ctx, accountID, Window{Before: shared.DateOf(periodStart)})
	if err != nil {
		return decimal.Zero, err
	}
	return shared.SignedBalance(normal, m.Debit, m.Credit), nil
}

// GetAccountLedger returns ledger rows for an account. Running balances are
// only computed for ascending date order, seeded by the opening balance of the
// query window.
func (a *Aggregator) GetAccountLedger(ctx context.Context, q LedgerQuery) (LedgerPage, error) {
	acc, err := a.accounts.Get(ctx, q.AccountID)
	if err != nil {
		return LedgerPage{}, err
	}
	window := Window{}
	if q.PeriodID != 0 {
		period, err := a.periods.Get(ctx, q.PeriodID)
		if err != nil {
			return LedgerPage{}, err
		}
		window = Between(period.StartDate, period.EndDate)
	}
	if q.From != nil {
		from := shared.DateOf(*q.From)
		if from.After(window.From) {
			window.From = from
		}
	}
	if q.To != nil {
		before := shared.DateOf(*q.To).AddDate(0, 0, 1)
		if window.Before.IsZero() || before.Before(window.Before) {
			window.Before = before
		}
	}

	opening := decimal.Zero
	if !window.From.IsZero() {
		opening, err = a.CalculateOpeningBalance(ctx, acc.ID, acc.NormalBalance, window.From)
		if err != nil {
			return LedgerPage{}, err
		}
	}
	records, err := a.store.ListRecords(ctx, RecordFilter{AccountID: acc.ID, Window: window})
	if err != nil {
		return LedgerPage{}, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].EntryDate.Equal(records[j].EntryDate) {
			return records[i].EntryDate.Before(records[j].EntryDate)
		}
		return records[i].ID < records[j].ID
	})

	page := LedgerPage{AccountID: acc.ID, OpeningBalance: opening, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	entries := make([]LedgerEntry, len(records))
	running := opening
	for i, rec := range records {
		page.TotalDebit = page.TotalDebit.Add(rec.Debit)
		page.TotalCredit = page.TotalCredit.Add(rec.Credit)
		entries[i] = LedgerEntry{Record: rec}
		if q.IncludeRunningBalance && q.OrderBy != OrderDateDesc {
			running = running.Add(shared.SignedBalance(acc.NormalBalance, rec.Debit, rec.Credit))
			value := running
			entries[i].RunningBalance = &value
		}
	}
	page.ClosingBalance = opening.Add(shared.SignedBalance(acc.NormalBalance, page.TotalDebit, page.TotalCredit))
	if q.OrderBy == OrderDateDesc {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	pg := internalShared.NewPagination(q.Page, q.PerPage, len(entries))
	page.Page, page.PerPage, page.Total, page.TotalPages = pg.Page, pg.PerPage, pg.Total, pg.TotalPages
	start, end := pg.Window()
	page.Entries = entries[start:end]
	return page, nil
}

// compute derives a balance row for the account and period from ledger records.
func compute(ctx context.Context, sum func(context.Context, int64, Window) (Movement, error), acc accounts.Account, period periods.Period) (AccountBalance, error) {
	before, err := sum(ctx, acc.ID, Window{Before: period.StartDate})
	if err != nil {
		return AccountBalance{}, err
	}
	during, err := sum(ctx, acc.ID, Between(period.StartDate, period.EndDate))
	if err != nil {
		return AccountBalance{}, err
	}
	opening := shared.SignedBalance(acc.NormalBalance, before.Debit, before.Credit)
	return AccountBalance{
		AccountID:       acc.ID,
		PeriodID:        period.ID,
		OpeningBalance:  opening,
		DebitMovements:  during.Debit,
		CreditMovements: during.Credit,
		ClosingBalance:  opening.Add(shared.SignedBalance(acc.NormalBalance, during.Debit, during.Credit)),
	}, nil
}

// RecalculateBalance rebuilds the balance row from ledger records, ignoring
// any cached value. Running it twice without new postings is a no-op.
func (a *Aggregator) RecalculateBalance(ctx context.Context, accountID, periodID int64) (AccountBalance, error) {
	acc, err := a.accounts.Get(ctx, accountID)
	if err != nil {
		return AccountBalance{}, err
	}
	period, err := a.periods.Get(ctx, periodID)
	if err != nil {
		return AccountBalance{}, err
	}
	var out AccountBalance
	err = a.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		bal, err := compute(ctx, tx.SumMovements, acc, period)
		if err != nil {
			return err
		}
		out, err = tx.ReplaceBalance(ctx, bal)
		return err
	})
	if err != nil {
		return AccountBalance{}, err
	}
	return out, nil
}

// BatchRecalculateBalances recalculates every postable account, or the given
// subset, one transaction per account. Failures are collected and the batch
// continues.
func (a *Aggregator) BatchRecalculateBalances(ctx context.Context, periodID int64, accountIDs []int64) (BatchResult, error) {
	if _, err := a.periods.Get(ctx, periodID); err != nil {
		return BatchResult{}, err
	}
	ids := accountIDs
	if len(ids) == 0 {
		postable, err := a.accounts.ListPostable(ctx)
		if err != nil {
			return BatchResult{}, err
		}
		for _, acc := range postable {
			ids = append(ids, acc.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	res := BatchResult{PeriodID: periodID, Errors: []BatchError{}}
	for start := 0; start < len(ids); start += a.chunkSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + a.chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			if _, err := a.RecalculateBalance(ctx, id, periodID); err != nil {
				a.logger.Warn("recalculate balance", slog.Int64("account_id", id), slog.Int64("period_id", periodID), slog.Any("error", err))
				res.Errors = append(res.Errors, BatchError{AccountID: id, Error: err.Error()})
				continue
			}
			res.AccountsProcessed++
		}
	}
	res.Success = len(res.Errors) == 0
	return res, nil
}

// GetAccountBalance returns the signed balance of an account as of a date.
func (a *Aggregator) GetAccountBalance(ctx context.Context, accountID int64, asOf time.Time) (PointBalance, error) {
	acc, err := a.accounts.Get(ctx, accountID)
	if err != nil {
		return PointBalance{}, err
	}
	m, err := a.store.SumMovements(ctx, acc.ID, Through(asOf))
	if err != nil {
		return PointBalance{}, err
	}
	return PointBalance{
		AccountID: acc.ID,
		AsOf:      shared.DateOf(asOf),
		Debit:     m.Debit,
		Credit:    m.Credit,
		Balance:   shared.SignedBalance(acc.NormalBalance, m.Debit, m.Credit),
	}, nil
}

// GetAccountBalances returns period balances for the given accounts. Accounts
// without a stored row are derived from ledger records without writing.
func (a *Aggregator) GetAccountBalances(ctx context.Context, accountIDs []int64, periodID int64) ([]AccountBalance, error) {
	period, err := a.periods.Get(ctx, periodID)
	if err != nil {
		return nil, err
	}
	stored, err := a.store.ListBalances(ctx, periodID, accountIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]AccountBalance, len(stored))
	for _, b := range stored {
		byID[b.AccountID] = b
	}
	var missing []int64
	for _, id := range accountIDs {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		accs, err := a.accounts.Lookup(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			acc, ok := accs[id]
			if !ok {
				return nil, shared.Wrap(shared.ErrAccountNotFound, "account %d", id)
			}
			bal, err := compute(ctx, a.store.SumMovements, acc, period)
			if err != nil {
				return nil, fmt.Errorf("ledger: derive balance %d: %w", id, err)
			}
			byID[id] = bal
		}
	}
	out := make([]AccountBalance, 0, len(accountIDs))
	for _, id := range accountIDs {
		out = append(out, byID[id])
	}
	return out, nil
}

// ClosingBalances returns closing balances keyed by account id.
func (a *Aggregator) ClosingBalances(ctx context.Context, periodID int64, accountIDs []int64) (map[int64]decimal.Decimal, error) {
	list, err := a.GetAccountBalances(ctx, accountIDs, periodID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]decimal.Decimal, len(list))
	for _, b := range list {
		out[b.AccountID] = b.ClosingBalance
	}
	return out, nil
}
