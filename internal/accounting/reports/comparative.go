package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ComparativeOptions requests a trial balance compared against earlier dates.
type ComparativeOptions struct {
	CurrentAsOfDate    time.Time
	CompareDates       []time.Time
	Filter             Filter
	HighlightThreshold *decimal.Decimal
}

// ComparedBalance is one comparison column for an account.
type ComparedBalance struct {
	AsOfDate time.Time       `json:"asOfDate"`
	Balance  decimal.Decimal `json:"balance"`
	shared.Variance
}

// ComparativeLine joins an account across the compared trial balances.
// Balances are signed by the normal side.
type ComparativeLine struct {
	AccountID int64                `json:"accountId"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Current   decimal.Decimal      `json:"current"`
	Compared  []ComparedBalance    `json:"compared"`
}

// ComparativeTrialBalance is the joined result.
type ComparativeTrialBalance struct {
	CurrentAsOfDate time.Time         `json:"currentAsOfDate"`
	CompareDates    []time.Time       `json:"compareDates"`
	Lines           []ComparativeLine `json:"lines"`
	Current         Totals            `json:"current"`
	IsBalanced      bool              `json:"isBalanced"`
}

// BuildComparative joins trial balances by account. Accounts missing from a
// trial balance compare against zero.
func BuildComparative(current TrialBalance, compared []TrialBalance, threshold *decimal.Decimal) ComparativeTrialBalance {
	type row struct {
		line     Line
		balances []decimal.Decimal
		current  decimal.Decimal
	}
	rows := make(map[int64]*row)
	ensure := func(l Line) *row {
		r, ok := rows[l.AccountID]
		if !ok {
			r = &row{line: l, current: decimal.Zero, balances: make([]decimal.Decimal, len(compared))}
			for i := range r.balances {
				r.balances[i] = decimal.Zero
			}
			rows[l.AccountID] = r
		}
		return r
	}
	for _, l := range current.Lines {
		if l.IsGroupHeader {
			continue
		}
		ensure(l).current = l.Balance()
	}
	for i, tb := range compared {
		for _, l := range tb.Lines {
			if l.IsGroupHeader {
				continue
			}
			ensure(l).balances[i] = l.Balance()
		}
	}

	out := ComparativeTrialBalance{
		CurrentAsOfDate: current.AsOfDate,
		CompareDates:    make([]time.Time, 0, len(compared)),
		Lines:           make([]ComparativeLine, 0, len(rows)),
		Current:         current.Totals,
		IsBalanced:      current.IsBalanced,
	}
	for _, tb := range compared {
		out.CompareDates = append(out.CompareDates, tb.AsOfDate)
	}
	for _, r := range rows {
		line := ComparativeLine{
			AccountID: r.line.AccountID,
			Code:      r.line.Code,
			Name:      r.line.Name,
			Type:      r.line.Type,
			Current:   r.current,
			Compared:  make([]ComparedBalance, 0, len(compared)),
		}
		for i, bal := range r.balances {
			line.Compared = append(line.Compared, ComparedBalance{
				AsOfDate: compared[i].AsOfDate,
				Balance:  bal,
				Variance: shared.ComputeVariance(r.current, bal, threshold),
			})
		}
		out.Lines = append(out.Lines, line)
	}
	sort.Slice(out.Lines, func(i, j int) bool { return out.Lines[i].Code < out.Lines[j].Code })
	return out
}
