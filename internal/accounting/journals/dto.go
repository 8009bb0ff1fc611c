package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput describes a journal line in a create or update request.
type LineInput struct {
	AccountID    int64
	Description  string
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Currency     string
	ExchangeRate decimal.Decimal
	CostCenter   string
	Project      string
	TaxCode      string
}

// CreateInput groups fields required to create a draft entry.
type CreateInput struct {
	EntryDate        time.Time
	EntryType        EntryType
	Description      string
	Reference        string
	RequiresApproval bool
	SourceModule     string
	SourceID         *uuid.UUID
	ActorID          int64
	Lines            []LineInput
}

// UpdateInput changes a draft entry. Nil fields keep their value; a nil Lines
// slice keeps the current lines.
type UpdateInput struct {
	EntryID          int64
	EntryDate        *time.Time
	Description      *string
	Reference        *string
	RequiresApproval *bool
	ActorID          int64
	Lines            []LineInput
}

// PostInput wraps parameters for posting.
type PostInput struct {
	EntryID        int64
	ActorID        int64
	BypassApproval bool
}

// CopyInput wraps parameters for copying an entry into a new draft.
type CopyInput struct {
	EntryID   int64
	EntryDate *time.Time
	ActorID   int64
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Memo    string
	Date    *time.Time
}

// Query filters entry listings.
type Query struct {
	Status    EntryStatus
	EntryType EntryType
	PeriodID  int64
	AccountID int64
	From      *time.Time
	To        *time.Time
	Search    string
	Page      int
	PerPage   int
}

// QueryResult is a page of entries.
type QueryResult struct {
	Entries    []JournalEntry `json:"entries"`
	Page       int            `json:"page"`
	PerPage    int            `json:"perPage"`
	Total      int            `json:"total"`
	TotalPages int            `json:"totalPages"`
}

// BulkItemResult reports the outcome for one id in a bulk operation.
type BulkItemResult struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BulkResult summarises a bulk operation. Success is false when any item failed.
type BulkResult struct {
	Results   []BulkItemResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Success   bool             `json:"success"`
}

// Issue is a validation error or warning tied to a line when LineNumber > 0.
type Issue struct {
	LineNumber int    `json:"lineNumber,omitempty"`
	AccountID  int64  `json:"accountId,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// ValidationResult is the read-only outcome of post-time checks.
type ValidationResult struct {
	EntryID     int64           `json:"entryId"`
	IsValid     bool            `json:"isValid"`
	IsBalanced  bool            `json:"isBalanced"`
	CanPost     bool            `json:"canPost"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
	Difference  decimal.Decimal `json:"difference"`
	Errors      []Issue         `json:"errors"`
	Warnings    []Issue         `json:"warnings"`
}

// StatsFilter bounds statistics by entry date.
type StatsFilter struct {
	From *time.Time
	To   *time.Time
}

// Statistics aggregates entry counts and posted amounts.
type Statistics struct {
	Total             int                 `json:"total"`
	ByStatus          map[EntryStatus]int `json:"byStatus"`
	ByType            map[EntryType]int   `json:"byType"`
	PostedDebitTotal  decimal.Decimal     `json:"postedDebitTotal"`
	PostedCreditTotal decimal.Decimal     `json:"postedCreditTotal"`
	PendingApproval   int                 `json:"pendingApproval"`
}
