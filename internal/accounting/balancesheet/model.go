package balancesheet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountAmount is one account's contribution to a line.
type AccountAmount struct {
	AccountID int64                `json:"accountId"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Amount    decimal.Decimal      `json:"amount"`
}

// Line is a statutory balance sheet position.
type Line struct {
	Key            string           `json:"key"`
	Label          string           `json:"label"`
	Amount         decimal.Decimal  `json:"amount"`
	ComparedAmount *decimal.Decimal `json:"comparedAmount,omitempty"`
	Variance       *shared.Variance `json:"variance,omitempty"`
	Accounts       []AccountAmount  `json:"accounts"`
}

// SectionTotal groups the lines of one side.
type SectionTotal struct {
	Section       Section          `json:"section"`
	Lines         []Line           `json:"lines"`
	Total         decimal.Decimal  `json:"total"`
	ComparedTotal *decimal.Decimal `json:"comparedTotal,omitempty"`
}

// Report is a computed balance sheet.
type Report struct {
	ReportDate                time.Time       `json:"reportDate"`
	ComparativeDate           *time.Time      `json:"comparativeDate,omitempty"`
	IncludeDrafts             bool            `json:"includeDrafts"`
	Assets                    SectionTotal    `json:"assets"`
	Equity                    SectionTotal    `json:"equity"`
	Liabilities               SectionTotal    `json:"liabilities"`
	TotalAssets               decimal.Decimal `json:"totalAssets"`
	TotalEquity               decimal.Decimal `json:"totalEquity"`
	TotalLiabilities          decimal.Decimal `json:"totalLiabilities"`
	TotalEquityAndLiabilities decimal.Decimal `json:"totalEquityAndLiabilities"`
	IsBalanced                bool            `json:"isBalanced"`
	BalanceDifference         decimal.Decimal `json:"balanceDifference"`
	// Unmapped lists balance sheet accounts no rule covers. They are excluded
	// from the totals.
	Unmapped []AccountAmount `json:"unmapped"`
}

// Line returns the line with key from any section.
func (r Report) Line(key string) (Line, bool) {
	for _, s := range []SectionTotal{r.Assets, r.Equity, r.Liabilities} {
		for _, l := range s.Lines {
			if l.Key == key {
				return l, true
			}
		}
	}
	return Line{}, false
}

// GenerateOptions selects the ledger state to report on.
type GenerateOptions struct {
	ReportDate      time.Time
	ComparativeDate *time.Time
	IncludeDrafts   bool
}

// SaveInput persists a freshly generated report.
type SaveInput struct {
	Name string
	GenerateOptions
	MarkAsFinal bool
	ActorID     int64
}

// Snapshot is a stored report.
type Snapshot struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	ReportDate  time.Time  `json:"reportDate"`
	IsFinal     bool       `json:"isFinal"`
	IsBalanced  bool       `json:"isBalanced"`
	Report      Report     `json:"report"`
	CreatedBy   int64      `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
}

// ListFilter narrows snapshot listings.
type ListFilter struct {
	From    *time.Time
	To      *time.Time
	Final   *bool
	Page    int
	PerPage int
}

// ListResult is a page of snapshots without the report payload.
type ListResult struct {
	Items      []Snapshot `json:"items"`
	Page       int        `json:"page"`
	PerPage    int        `json:"perPage"`
	Total      int        `json:"total"`
	TotalPages int        `json:"totalPages"`
}
