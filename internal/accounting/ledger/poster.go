package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TxStore exposes the ledger writes that run inside a posting transaction.
type TxStore interface {
	GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error)
	InsertRecords(ctx context.Context, records []Record) (int, error)
	// ApplyBalanceDelta must add to the stored movements atomically. The
	// opening balance is only computed when the row does not exist yet.
	ApplyBalanceDelta(ctx context.Context, delta BalanceDelta) (AccountBalance, error)
	SumMovements(ctx context.Context, accountID int64, window Window) (Movement, error)
	ReplaceBalance(ctx context.Context, balance AccountBalance) (AccountBalance, error)
}

// CheckBalanced verifies debit equals credit across lines.
func CheckBalanced(lines []Line) (debit, credit decimal.Decimal, err error) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	if !debit.Equal(credit) {
		return debit, credit, shared.Wrap(shared.ErrUnbalanced, "debit %s, credit %s", debit.StringFixed(2), credit.StringFixed(2))
	}
	return debit, credit, nil
}

// PostToGL fans a posting out into ledger records and updates the affected
// account balances. It must run inside the caller's transaction so the writes
// commit or roll back together with the entry status change.
func PostToGL(ctx context.Context, tx TxStore, p Posting) (PostResult, error) {
	if len(p.Lines) == 0 {
		return PostResult{}, shared.ErrTooFewLines
	}
	if _, _, err := CheckBalanced(p.Lines); err != nil {
		return PostResult{}, err
	}
	period, err := tx.GetPeriodForUpdate(ctx, p.PeriodID)
	if err != nil {
		return PostResult{}, err
	}
	if !period.IsOpen() {
		return PostResult{}, shared.Wrap(shared.ErrPeriodClosed, "period %s", period.Code)
	}
	entryDate := shared.DateOf(p.EntryDate)
	if !period.Contains(entryDate) {
		return PostResult{}, shared.Wrap(shared.ErrPeriodNotFound, "entry date %s outside period %s", entryDate.Format(shared.DateLayout), period.Code)
	}

	records := make([]Record, 0, len(p.Lines))
	deltas := make(map[int64]*BalanceDelta)
	for _, l := range p.Lines {
		records = append(records, Record{
			AccountID:   l.AccountID,
			PeriodID:    period.ID,
			EntryID:     p.EntryID,
			LineID:      l.LineID,
			EntryNumber: p.EntryNumber,
			EntryDate:   entryDate,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
			PostedAt:    p.PostedAt,
		})
		d, ok := deltas[l.AccountID]
		if !ok {
			d = &BalanceDelta{
				AccountID:     l.AccountID,
				PeriodID:      period.ID,
				PeriodStart:   period.StartDate,
				NormalBalance: l.NormalBalance,
				Debit:         decimal.Zero,
				Credit:        decimal.Zero,
			}
			deltas[l.AccountID] = d
		}
		d.Debit = d.Debit.Add(l.Debit)
		d.Credit = d.Credit.Add(l.Credit)
	}

	created, err := tx.InsertRecords(ctx, records)
	if err != nil {
		return PostResult{}, err
	}

	// Fixed lock order across concurrent postings.
	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	res := PostResult{RecordsCreated: created}
	for _, id := range ids {
		bal, err := tx.ApplyBalanceDelta(ctx, *deltas[id])
		if err != nil {
			return PostResult{}, err
		}
		res.Balances = append(res.Balances, bal)
	}
	res.BalancesUpdated = len(res.Balances)
	return res, nil
}
