package reports

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// GroupBy selects synthetic header lines in a trial balance.
type GroupBy string

const (
	GroupNone  GroupBy = "NONE"
	GroupClass GroupBy = "CLASS"
	GroupType  GroupBy = "TYPE"
)

// Valid reports whether the grouping is known. Empty means NONE.
func (g GroupBy) Valid() bool {
	switch g {
	case "", GroupNone, GroupClass, GroupType:
		return true
	}
	return false
}

// Filter narrows the accounts listed in a trial balance.
type Filter struct {
	Classes    []string `json:"classes,omitempty"`
	CodeFrom   string   `json:"codeFrom,omitempty"`
	CodeTo     string   `json:"codeTo,omitempty"`
	ActiveOnly bool     `json:"activeOnly,omitempty"`
}

// Options requests a trial balance as of a date.
type Options struct {
	AsOfDate            time.Time
	Filter              Filter
	GroupBy             GroupBy
	IncludeZeroBalances bool
}

// Line is a trial balance row. Group header lines carry the subtotal of the
// accounts below them and are excluded from the report totals.
type Line struct {
	AccountID     int64                `json:"accountId,omitempty"`
	Code          string               `json:"code"`
	Name          string               `json:"name"`
	Class         string               `json:"class"`
	Type          accounts.AccountType `json:"type,omitempty"`
	NormalBalance shared.NormalBalance `json:"normalBalance,omitempty"`
	DebitBalance  decimal.Decimal      `json:"debitBalance"`
	CreditBalance decimal.Decimal      `json:"creditBalance"`
	IsWarning     bool                 `json:"isWarning"`
	IsGroupHeader bool                 `json:"isGroupHeader"`
}

// Balance returns the net balance signed by the normal side.
func (l Line) Balance() decimal.Decimal {
	return shared.SignedBalance(l.NormalBalance, l.DebitBalance, l.CreditBalance)
}

// Totals sums account lines.
type Totals struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// TrialBalance is a point-in-time listing of account balances. IsBalanced is
// a self-consistency check on the ledger; false means corrupted data.
type TrialBalance struct {
	AsOfDate           time.Time       `json:"asOfDate"`
	GroupBy            GroupBy         `json:"groupBy"`
	Lines              []Line          `json:"lines"`
	Totals             Totals          `json:"totals"`
	AccountCount       int             `json:"accountCount"`
	IsBalanced         bool            `json:"isBalanced"`
	OutOfBalanceAmount decimal.Decimal `json:"outOfBalanceAmount"`
}

// Matches reports whether the account passes the filter.
func (f Filter) Matches(acc accounts.Account) bool {
	if f.ActiveOnly && !acc.IsActive {
		return false
	}
	if len(f.Classes) > 0 {
		found := false
		for _, c := range f.Classes {
			if strings.TrimSpace(c) == acc.Class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CodeFrom != "" && acc.Code < f.CodeFrom {
		return false
	}
	if f.CodeTo != "" && acc.Code > f.CodeTo && !strings.HasPrefix(acc.Code, f.CodeTo) {
		return false
	}
	return true
}

// BuildTrialBalance places every postable account's net movement on the side
// matching its sign. Header accounts never carry postings and are skipped.
func BuildTrialBalance(list []accounts.Account, movements []ledger.Movement, opts Options) TrialBalance {
	byAccount := make(map[int64]ledger.Movement, len(movements))
	for _, m := range movements {
		byAccount[m.AccountID] = m
	}

	sorted := append([]accounts.Account(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	tb := TrialBalance{
		AsOfDate:           shared.DateOf(opts.AsOfDate),
		GroupBy:            opts.GroupBy,
		Lines:              []Line{},
		Totals:             Totals{Debit: decimal.Zero, Credit: decimal.Zero},
		OutOfBalanceAmount: decimal.Zero,
	}
	if tb.GroupBy == "" {
		tb.GroupBy = GroupNone
	}

	var lines []Line
	for _, acc := range sorted {
		if !acc.AllowsPosting || !opts.Filter.Matches(acc) {
			continue
		}
		m, ok := byAccount[acc.ID]
		if !ok {
			m = ledger.Movement{AccountID: acc.ID, Debit: decimal.Zero, Credit: decimal.Zero}
		}
		dr, cr, warning := shared.PlaceBalance(acc.NormalBalance, m.Debit, m.Credit)
		if dr.IsZero() && cr.IsZero() && !opts.IncludeZeroBalances {
			continue
		}
		lines = append(lines, Line{
			AccountID:     acc.ID,
			Code:          acc.Code,
			Name:          acc.Name,
			Class:         acc.Class,
			Type:          acc.Type,
			NormalBalance: acc.NormalBalance,
			DebitBalance:  dr,
			CreditBalance: cr,
			IsWarning:     warning,
		})
		tb.Totals.Debit = tb.Totals.Debit.Add(dr)
		tb.Totals.Credit = tb.Totals.Credit.Add(cr)
	}
	tb.AccountCount = len(lines)
	tb.Lines = withGroupHeaders(lines, tb.GroupBy)

	diff := tb.Totals.Debit.Sub(tb.Totals.Credit)
	tb.IsBalanced = diff.IsZero()
	tb.OutOfBalanceAmount = diff.Abs()
	return tb
}

func groupKey(l Line, by GroupBy) string {
	if by == GroupType {
		return string(l.Type)
	}
	return l.Class
}

var classNames = map[string]string{
	"0": "Aktywa trwałe",
	"1": "Środki pieniężne",
	"2": "Rozrachunki i roszczenia",
	"3": "Materiały i towary",
	"4": "Koszty według rodzajów",
	"5": "Koszty według typów działalności",
	"6": "Produkty i rozliczenia międzyokresowe",
	"7": "Przychody i koszty ich uzyskania",
	"8": "Kapitały, fundusze i wynik finansowy",
}

func groupName(key string, by GroupBy) string {
	if by == GroupClass {
		if name, ok := classNames[key]; ok {
			return "Zespół " + key + " - " + name
		}
		return "Zespół " + key
	}
	return key
}

// withGroupHeaders inserts a header before each group. Type groups are
// ordered by type name; class groups follow the code order.
func withGroupHeaders(lines []Line, by GroupBy) []Line {
	if lines == nil {
		return []Line{}
	}
	if by != GroupClass && by != GroupType {
		return lines
	}
	if by == GroupType {
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].Type < lines[j].Type })
	}
	out := make([]Line, 0, len(lines)+8)
	for i := 0; i < len(lines); {
		key := groupKey(lines[i], by)
		j := i
		header := Line{Code: key, Name: groupName(key, by), IsGroupHeader: true, DebitBalance: decimal.Zero, CreditBalance: decimal.Zero}
		if by == GroupClass {
			header.Class = key
		} else {
			header.Type = lines[i].Type
		}
		for j < len(lines) && groupKey(lines[j], by) == key {
			header.DebitBalance = header.DebitBalance.Add(lines[j].DebitBalance)
			header.CreditBalance = header.CreditBalance.Add(lines[j].CreditBalance)
			j++
		}
		out = append(out, header)
		out = append(out, lines[i:j]...)
		i = j
	}
	return out
}
