package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Record is an immutable general ledger row, one per posted journal line.
type Record struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"accountId"`
	PeriodID    int64           `json:"periodId"`
	EntryID     int64           `json:"entryId"`
	LineID      int64           `json:"lineId"`
	EntryNumber string          `json:"entryNumber"`
	EntryDate   time.Time       `json:"entryDate"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	PostedAt    time.Time       `json:"postedAt"`
}

// AccountBalance is the cached aggregate for one (account, period) pair.
type AccountBalance struct {
	AccountID       int64           `json:"accountId"`
	PeriodID        int64           `json:"periodId"`
	OpeningBalance  decimal.Decimal `json:"openingBalance"`
	DebitMovements  decimal.Decimal `json:"debitMovements"`
	CreditMovements decimal.Decimal `json:"creditMovements"`
	ClosingBalance  decimal.Decimal `json:"closingBalance"`
	LastUpdated     time.Time       `json:"lastUpdated"`
}

// Line is a journal line ready for posting, with base currency amounts.
type Line struct {
	LineID        int64
	AccountID     int64
	NormalBalance shared.NormalBalance
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Description   string
}

// Posting describes a journal entry being committed to the ledger.
type Posting struct {
	EntryID     int64
	EntryNumber string
	PeriodID    int64
	EntryDate   time.Time
	PostedAt    time.Time
	Lines       []Line
}

// BalanceDelta is the additive change applied to one account balance row.
type BalanceDelta struct {
	AccountID     int64
	PeriodID      int64
	PeriodStart   time.Time
	NormalBalance shared.NormalBalance
	Debit         decimal.Decimal
	Credit        decimal.Decimal
}

// Signed returns the closing balance change implied by the delta.
func (d BalanceDelta) Signed() decimal.Decimal {
	return shared.SignedBalance(d.NormalBalance, d.Debit, d.Credit)
}

// PostResult summarises a successful posting.
type PostResult struct {
	RecordsCreated  int              `json:"recordsCreated"`
	BalancesUpdated int              `json:"balancesUpdated"`
	Balances        []AccountBalance `json:"balances"`
}

// Movement holds debit and credit totals for an account.
type Movement struct {
	AccountID int64           `json:"accountId"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// Window bounds entry dates as [From, Before). Zero bounds are open.
type Window struct {
	From   time.Time
	Before time.Time
}

// Through returns the window of every date up to and including day.
func Through(day time.Time) Window {
	return Window{Before: shared.DateOf(day).AddDate(0, 0, 1)}
}

// Between returns the window of dates from..to inclusive.
func Between(from, to time.Time) Window {
	return Window{From: shared.DateOf(from), Before: shared.DateOf(to).AddDate(0, 0, 1)}
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day time.Time) bool {
	if !w.From.IsZero() && day.Before(w.From) {
		return false
	}
	if !w.Before.IsZero() && !day.Before(w.Before) {
		return false
	}
	return true
}

// TotalsOptions selects movements for report builders.
type TotalsOptions struct {
	Window Window
	// IncludeDrafts adds lines of unposted entries to the ledger totals.
	IncludeDrafts bool
}

// RecordFilter selects ledger rows for one account.
type RecordFilter struct {
	AccountID int64
	Window    Window
	PeriodID  int64
}

// LedgerOrder sorts an account ledger.
type LedgerOrder string

const (
	OrderDateAsc  LedgerOrder = "date_asc"
	OrderDateDesc LedgerOrder = "date_desc"
)

// LedgerQuery requests a page of an account ledger.
type LedgerQuery struct {
	AccountID             int64
	From                  *time.Time
	To                    *time.Time
	PeriodID              int64
	OrderBy               LedgerOrder
	IncludeRunningBalance bool
	Page                  int
	PerPage               int
}

// LedgerEntry is a ledger row with its optional running balance.
type LedgerEntry struct {
	Record
	RunningBalance *decimal.Decimal `json:"runningBalance,omitempty"`
}

// LedgerPage is a paginated account ledger.
type LedgerPage struct {
	AccountID      int64           `json:"accountId"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	TotalDebit     decimal.Decimal `json:"totalDebit"`
	TotalCredit    decimal.Decimal `json:"totalCredit"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
	Entries        []LedgerEntry   `json:"entries"`
	Page           int             `json:"page"`
	PerPage        int             `json:"perPage"`
	Total          int             `json:"total"`
	TotalPages     int             `json:"totalPages"`
}

// PointBalance is an account balance at a date.
type PointBalance struct {
	AccountID int64           `json:"accountId"`
	AsOf      time.Time       `json:"asOf"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Balance   decimal.Decimal `json:"balance"`
}

// BatchError reports one failed account in a batch recalculation.
type BatchError struct {
	AccountID int64  `json:"accountId"`
	Error     string `json:"error"`
}

// BatchResult summarises a batch recalculation.
type BatchResult struct {
	PeriodID          int64        `json:"periodId"`
	AccountsProcessed int          `json:"accountsProcessed"`
	Errors            []BatchError `json:"errors"`
	Success           bool         `json:"success"`
}
