package balancesheet

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type mapped struct {
	lines    map[string]decimal.Decimal
	accounts map[string][]AccountAmount
	unmapped []AccountAmount
}

// sectionSign nets a movement into the section's positive direction.
func sectionSign(section Section, m ledger.Movement) decimal.Decimal {
	if section == SectionAssets {
		return m.Debit.Sub(m.Credit)
	}
	return m.Credit.Sub(m.Debit)
}

func mapMovements(p Policy, byID map[int64]accounts.Account, movements []ledger.Movement) mapped {
	out := mapped{lines: map[string]decimal.Decimal{}, accounts: map[string][]AccountAmount{}}
	netRule, hasNet := p.netResultRule()
	for _, m := range movements {
		acc, ok := byID[m.AccountID]
		if !ok {
			continue
		}
		rule, ok := p.Match(acc.Code)
		if !ok && hasNet && (acc.Type == accounts.AccountTypeRevenue || acc.Type == accounts.AccountTypeExpense) {
			rule, ok = netRule, true
		}
		if !ok {
			amount := shared.SignedBalance(acc.NormalBalance, m.Debit, m.Credit)
			if !amount.IsZero() {
				out.unmapped = append(out.unmapped, AccountAmount{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Type: acc.Type, Amount: amount})
			}
			continue
		}
		amount := sectionSign(rule.Section, m)
		if amount.IsZero() {
			continue
		}
		out.lines[rule.Key] = out.lines[rule.Key].Add(amount)
		out.accounts[rule.Key] = append(out.accounts[rule.Key], AccountAmount{
			AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Type: acc.Type, Amount: amount,
		})
	}
	for key := range out.accounts {
		list := out.accounts[key]
		sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	}
	sort.Slice(out.unmapped, func(i, j int) bool { return out.unmapped[i].Code < out.unmapped[j].Code })
	return out
}

// Build maps ledger movements onto the policy's statutory lines. compared may
// be nil when no comparative date was requested.
func Build(p Policy, list []accounts.Account, current, compared []ledger.Movement, opts GenerateOptions) Report {
	byID := make(map[int64]accounts.Account, len(list))
	for _, acc := range list {
		byID[acc.ID] = acc
	}
	cur := mapMovements(p, byID, current)
	var cmp *mapped
	if opts.ComparativeDate != nil {
		m := mapMovements(p, byID, compared)
		cmp = &m
	}

	r := Report{
		ReportDate:    shared.DateOf(opts.ReportDate),
		IncludeDrafts: opts.IncludeDrafts,
		Assets:        SectionTotal{Section: SectionAssets, Lines: []Line{}, Total: decimal.Zero},
		Equity:        SectionTotal{Section: SectionEquity, Lines: []Line{}, Total: decimal.Zero},
		Liabilities:   SectionTotal{Section: SectionLiabilities, Lines: []Line{}, Total: decimal.Zero},
		Unmapped:      cur.unmapped,
	}
	if r.Unmapped == nil {
		r.Unmapped = []AccountAmount{}
	}
	if opts.ComparativeDate != nil {
		d := shared.DateOf(*opts.ComparativeDate)
		r.ComparativeDate = &d
	}
	for _, rule := range p.Rules {
		line := Line{Key: rule.Key, Label: rule.Label, Amount: cur.lines[rule.Key], Accounts: cur.accounts[rule.Key]}
		if line.Accounts == nil {
			line.Accounts = []AccountAmount{}
		}
		if cmp != nil {
			amount := cmp.lines[rule.Key]
			v := shared.ComputeVariance(line.Amount, amount, nil)
			line.ComparedAmount = &amount
			line.Variance = &v
		}
		section := r.section(rule.Section)
		section.Lines = append(section.Lines, line)
		section.Total = section.Total.Add(line.Amount)
		if cmp != nil {
			total := decimal.Zero
			if section.ComparedTotal != nil {
				total = *section.ComparedTotal
			}
			total = total.Add(*line.ComparedAmount)
			section.ComparedTotal = &total
		}
	}
	r.TotalAssets = r.Assets.Total
	r.TotalEquity = r.Equity.Total
	r.TotalLiabilities = r.Liabilities.Total
	r.TotalEquityAndLiabilities = r.TotalEquity.Add(r.TotalLiabilities)
	r.BalanceDifference = r.TotalAssets.Sub(r.TotalEquityAndLiabilities)
	r.IsBalanced = r.BalanceDifference.IsZero()
	return r
}

func (r *Report) section(s Section) *SectionTotal {
	switch s {
	case SectionAssets:
		return &r.Assets
	case SectionEquity:
		return &r.Equity
	default:
		return &r.Liabilities
	}
}

func dateKey(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return shared.DateOf(*t).Format(shared.DateLayout)
}
