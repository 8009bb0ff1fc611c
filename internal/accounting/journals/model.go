package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType selects numbering prefix and semantics of an entry.
type EntryType string

const (
	EntryTypeStandard   EntryType = "STANDARD"
	EntryTypeAdjustment EntryType = "ADJUSTMENT"
	EntryTypeClosing    EntryType = "CLOSING"
	EntryTypeOpening    EntryType = "OPENING"
	EntryTypeReversal   EntryType = "REVERSAL"
	EntryTypeAccrual    EntryType = "ACCRUAL"
)

var entryPrefixes = map[EntryType]string{
	EntryTypeStandard:   "JE",
	EntryTypeAdjustment: "AJ",
	EntryTypeClosing:    "CJ",
	EntryTypeOpening:    "OB",
	EntryTypeReversal:   "RV",
	EntryTypeAccrual:    "AC",
}

// Valid reports whether the type is known.
func (t EntryType) Valid() bool {
	_, ok := entryPrefixes[t]
	return ok
}

// Prefix returns the numbering prefix, e.g. JE.
func (t EntryType) Prefix() string {
	return entryPrefixes[t]
}

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	StatusDraft           EntryStatus = "DRAFT"
	StatusPendingApproval EntryStatus = "PENDING_APPROVAL"
	StatusPosted          EntryStatus = "POSTED"
	StatusReversed        EntryStatus = "REVERSED"
)

// Editable reports whether lines and header may still change.
func (s EntryStatus) Editable() bool {
	return s == StatusDraft
}

// Postable reports whether the status allows posting.
func (s EntryStatus) Postable() bool {
	return s == StatusDraft || s == StatusPendingApproval
}

// JournalEntry captures header data and owns its lines.
type JournalEntry struct {
	ID               int64           `json:"id"`
	RefID            uuid.UUID       `json:"refId"`
	EntryNumber      string          `json:"entryNumber"`
	EntryDate        time.Time       `json:"entryDate"`
	EntryType        EntryType       `json:"entryType"`
	Status           EntryStatus     `json:"status"`
	PeriodID         int64           `json:"periodId"`
	Description      string          `json:"description"`
	Reference        string          `json:"reference,omitempty"`
	TotalDebit       decimal.Decimal `json:"totalDebit"`
	TotalCredit      decimal.Decimal `json:"totalCredit"`
	RequiresApproval bool            `json:"requiresApproval"`
	ApprovedAt       *time.Time      `json:"approvedAt,omitempty"`
	ApprovedBy       *int64          `json:"approvedBy,omitempty"`
	PostedAt         *time.Time      `json:"postedAt,omitempty"`
	PostedBy         *int64          `json:"postedBy,omitempty"`
	ReversedAt       *time.Time      `json:"reversedAt,omitempty"`
	ReversedBy       *int64          `json:"reversedBy,omitempty"`
	ReversalOfID     *int64          `json:"reversalOfId,omitempty"`
	SourceModule     string          `json:"sourceModule,omitempty"`
	SourceID         *uuid.UUID      `json:"sourceId,omitempty"`
	CreatedBy        int64           `json:"createdBy"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Lines            []JournalLine   `json:"lines"`
}

// JournalLine stores one debit or credit amount and its base currency value.
type JournalLine struct {
	ID               int64           `json:"id"`
	EntryID          int64           `json:"entryId"`
	LineNumber       int             `json:"lineNumber"`
	AccountID        int64           `json:"accountId"`
	Description      string          `json:"description,omitempty"`
	DebitAmount      decimal.Decimal `json:"debitAmount"`
	CreditAmount     decimal.Decimal `json:"creditAmount"`
	Currency         string          `json:"currency"`
	ExchangeRate     decimal.Decimal `json:"exchangeRate"`
	BaseDebitAmount  decimal.Decimal `json:"baseDebitAmount"`
	BaseCreditAmount decimal.Decimal `json:"baseCreditAmount"`
	CostCenter       string          `json:"costCenter,omitempty"`
	Project          string          `json:"project,omitempty"`
	TaxCode          string          `json:"taxCode,omitempty"`
}

// IsDebit reports whether the line carries a debit amount.
func (l JournalLine) IsDebit() bool {
	return l.BaseDebitAmount.IsPositive()
}
