package journals

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// baseScale is the number of decimal places kept on base currency amounts.
const baseScale = 2

// Column limits of journal_lines: amounts are NUMERIC(20,4), rates NUMERIC(20,8).
const (
	amountPrecision, amountScale = 20, 4
	ratePrecision, rateScale     = 20, 8
)

// fitsNumeric reports whether d is storable as NUMERIC(precision, scale)
// without rounding or overflow.
func fitsNumeric(d decimal.Decimal, precision, scale int32) bool {
	if !d.Equal(d.Truncate(scale)) {
		return false
	}
	return d.Abs().LessThan(decimal.New(1, precision-scale))
}

// buildLines validates line shape and converts amounts to the base currency.
// It does not check the balance or the referenced accounts.
func buildLines(in []LineInput, baseCurrency string) ([]JournalLine, error) {
	if len(in) < 2 {
		return nil, shared.ErrTooFewLines
	}
	out := make([]JournalLine, 0, len(in))
	for i, l := range in {
		n := i + 1
		if l.AccountID == 0 {
			return nil, shared.Wrap(shared.ErrInvalidLine, "line %d: account required", n)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return nil, shared.Wrap(shared.ErrInvalidLine, "line %d: negative amount", n)
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return nil, shared.Wrap(shared.ErrInvalidLine, "line %d: exactly one of debit or credit must be set", n)
		}
		if !fitsNumeric(l.Debit, amountPrecision, amountScale) || !fitsNumeric(l.Credit, amountPrecision, amountScale) {
			return nil, shared.Wrap(shared.ErrInvalidLine, "line %d: amount exceeds %d decimal places or %d digits", n, amountScale, amountPrecision)
		}
		code := strings.ToUpper(strings.TrimSpace(l.Currency))
		if code == "" {
			code = baseCurrency
		}
		unit, err := currency.ParseISO(code)
		if err != nil {
			return nil, shared.Wrap(shared.ErrInvalidLine, "line %d: unknown currency %q", n, l.Currency)
		}
		rate := l.ExchangeRate
		if rate.IsZero() {
			rate = decimal.NewFromInt(1)
		}
		if rate.IsNegative() {
			return nil, shared.Wrap(shared.ErrInvalidLine, "line %d: exchange rate must be positive", n)
		}
		if !fitsNumeric(rate, ratePrecision, rateScale) {
			return nil, shared.Wrap(shared.ErrInvalidLine, "line %d: exchange rate exceeds %d decimal places or %d digits", n, rateScale, ratePrecision)
		}
		out = append(out, JournalLine{
			LineNumber:       n,
			AccountID:        l.AccountID,
			Description:      strings.TrimSpace(l.Description),
			DebitAmount:      l.Debit,
			CreditAmount:     l.Credit,
			Currency:         unit.String(),
			ExchangeRate:     rate,
			BaseDebitAmount:  l.Debit.Mul(rate).Round(baseScale),
			BaseCreditAmount: l.Credit.Mul(rate).Round(baseScale),
			CostCenter:       strings.TrimSpace(l.CostCenter),
			Project:          strings.TrimSpace(l.Project),
			TaxCode:          strings.TrimSpace(l.TaxCode),
		})
	}
	return out, nil
}

// totals sums base amounts.
func totals(lines []JournalLine) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.BaseDebitAmount)
		credit = credit.Add(l.BaseCreditAmount)
	}
	return debit, credit
}

// checkBalanced rejects lines whose base debit and credit differ.
func checkBalanced(lines []JournalLine) (debit, credit decimal.Decimal, err error) {
	debit, credit = totals(lines)
	if !debit.Equal(credit) {
		return debit, credit, shared.Wrap(shared.ErrUnbalanced, "debit %s, credit %s, difference %s",
			debit.StringFixed(2), credit.StringFixed(2), debit.Sub(credit).StringFixed(2))
	}
	return debit, credit, nil
}

// accountIssue returns the failure for an account on a line, or nil.
func accountIssue(line JournalLine, acc accounts.Account, found bool) error {
	switch {
	case !found:
		return shared.Wrap(shared.ErrAccountNotFound, "line %d: account %d", line.LineNumber, line.AccountID)
	case !acc.IsActive:
		return shared.Wrap(shared.ErrAccountInactive, "line %d: account %s", line.LineNumber, acc.Code)
	case !acc.AllowsPosting:
		return shared.Wrap(shared.ErrAccountNotPostable, "line %d: account %s", line.LineNumber, acc.Code)
	}
	return nil
}

func lineAccountIDs(lines []JournalLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	return ids
}

// resolveAccounts loads and validates every account referenced by lines.
func (s *Service) resolveAccounts(ctx context.Context, lines []JournalLine) (map[int64]accounts.Account, error) {
	accs, err := s.accounts.Lookup(ctx, lineAccountIDs(lines))
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		acc, ok := accs[l.AccountID]
		if err := accountIssue(l, acc, ok); err != nil {
			return nil, err
		}
	}
	return accs, nil
}

// toPostingLines maps journal lines to ledger lines carrying base amounts.
func toPostingLines(lines []JournalLine, accs map[int64]accounts.Account) []ledger.Line {
	out := make([]ledger.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, ledger.Line{
			LineID:        l.ID,
			AccountID:     l.AccountID,
			NormalBalance: accs[l.AccountID].NormalBalance,
			Debit:         l.BaseDebitAmount,
			Credit:        l.BaseCreditAmount,
			Description:   l.Description,
		})
	}
	return out
}

// swapSides returns line inputs with debit and credit exchanged.
func swapSides(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{
			AccountID:    l.AccountID,
			Description:  l.Description,
			Debit:        l.CreditAmount,
			Credit:       l.DebitAmount,
			Currency:     l.Currency,
			ExchangeRate: l.ExchangeRate,
			CostCenter:   l.CostCenter,
			Project:      l.Project,
			TaxCode:      l.TaxCode,
		})
	}
	return out
}

// toInputs copies lines into inputs for a new draft.
func toInputs(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{
			AccountID:    l.AccountID,
			Description:  l.Description,
			Debit:        l.DebitAmount,
			Credit:       l.CreditAmount,
			Currency:     l.Currency,
			ExchangeRate: l.ExchangeRate,
			CostCenter:   l.CostCenter,
			Project:      l.Project,
			TaxCode:      l.TaxCode,
		})
	}
	return out
}
