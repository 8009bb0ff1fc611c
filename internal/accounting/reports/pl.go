package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

// ProfitAndLossAccount represents a revenue or expense account summary.
type ProfitAndLossAccount struct {
	AccountID int64           `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string                 `json:"label"`
	Accounts []ProfitAndLossAccount `json:"accounts"`
	Total    decimal.Decimal        `json:"total"`
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	From      time.Time            `json:"from"`
	To        time.Time            `json:"to"`
	Revenue   ProfitAndLossSection `json:"revenue"`
	Expense   ProfitAndLossSection `json:"expense"`
	NetIncome decimal.Decimal      `json:"netIncome"`
}

// BuildProfitAndLoss aggregates period movements into revenue and expense
// sections. Revenue is credit - debit, expense is debit - credit.
func BuildProfitAndLoss(list []accounts.Account, movements []ledger.Movement, from, to time.Time) ProfitAndLoss {
	byAccount := make(map[int64]ledger.Movement, len(movements))
	for _, m := range movements {
		byAccount[m.AccountID] = m
	}
	revenue := ProfitAndLossSection{Label: "Przychody", Accounts: []ProfitAndLossAccount{}, Total: decimal.Zero}
	expense := ProfitAndLossSection{Label: "Koszty", Accounts: []ProfitAndLossAccount{}, Total: decimal.Zero}

	for _, acc := range list {
		m, ok := byAccount[acc.ID]
		if !ok {
			continue
		}
		row := ProfitAndLossAccount{AccountID: acc.ID, Code: acc.Code, Name: acc.Name}
		switch acc.Type {
		case accounts.AccountTypeRevenue:
			row.Amount = m.Credit.Sub(m.Debit)
			revenue.Accounts = append(revenue.Accounts, row)
			revenue.Total = revenue.Total.Add(row.Amount)
		case accounts.AccountTypeExpense:
			row.Amount = m.Debit.Sub(m.Credit)
			expense.Accounts = append(expense.Accounts, row)
			expense.Total = expense.Total.Add(row.Amount)
		}
	}

	sort.Slice(revenue.Accounts, func(i, j int) bool { return revenue.Accounts[i].Code < revenue.Accounts[j].Code })
	sort.Slice(expense.Accounts, func(i, j int) bool { return expense.Accounts[i].Code < expense.Accounts[j].Code })

	return ProfitAndLoss{
		From:      from,
		To:        to,
		Revenue:   revenue,
		Expense:   expense,
		NetIncome: revenue.Total.Sub(expense.Total),
	}
}
