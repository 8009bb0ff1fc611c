package wtb

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Status enumerates working trial balance states. DRAFT -> LOCKED is terminal.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusLocked Status = "LOCKED"
)

// ColumnType classifies an adjustment column.
type ColumnType string

const (
	ColumnAdjusting        ColumnType = "ADJUSTING"
	ColumnReclassification ColumnType = "RECLASSIFICATION"
)

// Valid reports whether the column type is known.
func (t ColumnType) Valid() bool {
	return t == ColumnAdjusting || t == ColumnReclassification
}

// WorkingTrialBalance is a lockable trial balance snapshot with adjustments.
type WorkingTrialBalance struct {
	ID           int64      `json:"id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	FiscalYearID int64      `json:"fiscalYearId"`
	PeriodID     int64      `json:"periodId"`
	AsOfDate     time.Time  `json:"asOfDate"`
	Status       Status     `json:"status"`
	LockedAt     *time.Time `json:"lockedAt,omitempty"`
	LockedBy     *int64     `json:"lockedBy,omitempty"`
	CreatedBy    int64      `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Columns      []Column   `json:"columns"`
	Lines        []Line     `json:"lines"`
}

// Locked reports whether the WTB is terminal.
func (w WorkingTrialBalance) Locked() bool {
	return w.Status == StatusLocked
}

// Column is a named set of adjustments.
type Column struct {
	ID             int64      `json:"id"`
	WTBID          int64      `json:"wtbId"`
	Name           string     `json:"name"`
	Type           ColumnType `json:"type"`
	JournalEntryID *int64     `json:"journalEntryId,omitempty"`
	Position       int        `json:"position"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Adjustment is a signed amount recorded against one line in one column.
// Positive amounts increase the debit side.
type Adjustment struct {
	ColumnID    int64           `json:"columnId"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Line holds one account of the snapshot.
type Line struct {
	ID               int64                `json:"id"`
	WTBID            int64                `json:"wtbId"`
	AccountID        int64                `json:"accountId"`
	AccountCode      string               `json:"accountCode"`
	AccountName      string               `json:"accountName"`
	AccountType      accounts.AccountType `json:"accountType"`
	NormalBalance    shared.NormalBalance `json:"normalBalance"`
	UnadjustedDebit  decimal.Decimal      `json:"unadjustedDebit"`
	UnadjustedCredit decimal.Decimal      `json:"unadjustedCredit"`
	Adjustments      []Adjustment         `json:"adjustments"`
	AdjustedDebit    decimal.Decimal      `json:"adjustedDebit"`
	AdjustedCredit   decimal.Decimal      `json:"adjustedCredit"`
}

// AdjustmentTotal sums the signed adjustments on the line.
func (l Line) AdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range l.Adjustments {
		total = total.Add(a.Amount)
	}
	return total
}

// Recompute derives the adjusted columns from the unadjusted balance and the
// signed adjustments. The net lands on the side matching its sign.
func (l *Line) Recompute() {
	net := l.UnadjustedDebit.Sub(l.UnadjustedCredit).Add(l.AdjustmentTotal())
	switch net.Sign() {
	case 1:
		l.AdjustedDebit, l.AdjustedCredit = net, decimal.Zero
	case -1:
		l.AdjustedDebit, l.AdjustedCredit = decimal.Zero, net.Neg()
	default:
		l.AdjustedDebit, l.AdjustedCredit = decimal.Zero, decimal.Zero
	}
}

// Totals holds debit and credit sums.
type Totals struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Balanced reports whether debit equals credit.
func (t Totals) Balanced() bool {
	return t.Debit.Equal(t.Credit)
}

// Summary condenses a WTB for listings and lock checks.
type Summary struct {
	ID                   int64           `json:"id"`
	Code                 string          `json:"code"`
	Name                 string          `json:"name"`
	Status               Status          `json:"status"`
	AsOfDate             time.Time       `json:"asOfDate"`
	LineCount            int             `json:"lineCount"`
	ColumnCount          int             `json:"columnCount"`
	AdjustmentCount      int             `json:"adjustmentCount"`
	Unadjusted           Totals          `json:"unadjusted"`
	Adjusted             Totals          `json:"adjusted"`
	IsUnadjustedBalanced bool            `json:"isUnadjustedBalanced"`
	IsBalanced           bool            `json:"isBalanced"`
	Difference           decimal.Decimal `json:"difference"`
}

// Summarize computes totals over every line.
func Summarize(w WorkingTrialBalance) Summary {
	s := Summary{
		ID:          w.ID,
		Code:        w.Code,
		Name:        w.Name,
		Status:      w.Status,
		AsOfDate:    w.AsOfDate,
		LineCount:   len(w.Lines),
		ColumnCount: len(w.Columns),
		Unadjusted:  Totals{Debit: decimal.Zero, Credit: decimal.Zero},
		Adjusted:    Totals{Debit: decimal.Zero, Credit: decimal.Zero},
	}
	for _, l := range w.Lines {
		s.Unadjusted.Debit = s.Unadjusted.Debit.Add(l.UnadjustedDebit)
		s.Unadjusted.Credit = s.Unadjusted.Credit.Add(l.UnadjustedCredit)
		s.Adjusted.Debit = s.Adjusted.Debit.Add(l.AdjustedDebit)
		s.Adjusted.Credit = s.Adjusted.Credit.Add(l.AdjustedCredit)
		s.AdjustmentCount += len(l.Adjustments)
	}
	s.IsUnadjustedBalanced = s.Unadjusted.Balanced()
	s.IsBalanced = s.Adjusted.Balanced()
	s.Difference = s.Adjusted.Debit.Sub(s.Adjusted.Credit)
	return s
}

// CreateInput describes a new working trial balance.
type CreateInput struct {
	Name        string
	Description string
	PeriodID    int64
	// AsOfDate defaults to the period end date.
	AsOfDate *time.Time
	ActorID  int64
}

// ColumnInput adds an adjustment column.
type ColumnInput struct {
	WTBID          int64
	Name           string
	Type           ColumnType
	JournalEntryID *int64
	ActorID        int64
}

// AdjustmentInput records an adjustment for (column, account). A zero amount
// removes the adjustment.
type AdjustmentInput struct {
	WTBID       int64
	ColumnID    int64
	AccountID   int64
	Amount      decimal.Decimal
	Reference   string
	Description string
	ActorID     int64
}

// ListFilter narrows listings.
type ListFilter struct {
	Status   Status
	PeriodID int64
	Page     int
	PerPage  int
}

// ListResult is a page of WTB headers.
type ListResult struct {
	Items      []WorkingTrialBalance `json:"items"`
	Page       int                   `json:"page"`
	PerPage    int                   `json:"perPage"`
	Total      int                   `json:"total"`
	TotalPages int                   `json:"totalPages"`
}

// LockResult reports the lock outcome. Warning is set when the adjusted
// totals did not balance at lock time.
type LockResult struct {
	WTB        WorkingTrialBalance `json:"wtb"`
	IsBalanced bool                `json:"isBalanced"`
	Difference decimal.Decimal     `json:"difference"`
	Warning    string              `json:"warning,omitempty"`
}
