package shared

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures for transport mapping.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidState     Kind = "INVALID_STATE"
	KindUnbalanced       Kind = "UNBALANCED"
	KindPeriodClosed     Kind = "PERIOD_CLOSED"
	KindApprovalRequired Kind = "APPROVAL_REQUIRED"
	KindValidation       Kind = "VALIDATION_FAILURE"
)

// Error is a ledger failure carrying a stable code. Two errors match under
// errors.Is when their codes are equal, so wrapped details keep the sentinel.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "accounting: " + e.Message
	}
	return "accounting: " + e.Message + ": " + e.Detail
}

// Is matches on the error code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// ErrPeriodNotFound indicates no period covers the requested date.
	ErrPeriodNotFound = newError(KindNotFound, "PERIOD_NOT_FOUND", "period not found")
	// ErrPeriodClosed indicates the target period is not open.
	ErrPeriodClosed = newError(KindPeriodClosed, "PERIOD_CLOSED", "period is closed")
	// ErrFiscalYearNotFound indicates missing fiscal year.
	ErrFiscalYearNotFound = newError(KindNotFound, "FISCAL_YEAR_NOT_FOUND", "fiscal year not found")
	// ErrPeriodsNotContiguous indicates gaps or overlaps inside a fiscal year.
	ErrPeriodsNotContiguous = newError(KindValidation, "PERIODS_NOT_CONTIGUOUS", "periods must be contiguous and non-overlapping")

	// ErrAccountNotFound indicates a referenced account does not exist.
	ErrAccountNotFound = newError(KindValidation, "ACCOUNT_NOT_FOUND", "account not found")
	// ErrAccountInactive indicates a deactivated account on a line.
	ErrAccountInactive = newError(KindValidation, "ACCOUNT_INACTIVE", "account is inactive")
	// ErrAccountNotPostable indicates a header account on a line.
	ErrAccountNotPostable = newError(KindValidation, "ACCOUNT_NOT_POSTABLE", "account does not allow posting")
	// ErrInvalidAccountCode indicates a code that breaks the hierarchy rules.
	ErrInvalidAccountCode = newError(KindValidation, "INVALID_ACCOUNT_CODE", "invalid account code")
	// ErrDuplicateAccount indicates an existing account with the same code.
	ErrDuplicateAccount = newError(KindValidation, "DUPLICATE_ACCOUNT", "account code already exists")

	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = newError(KindUnbalanced, "UNBALANCED_ENTRY", "journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = newError(KindValidation, "TOO_FEW_LINES", "journal requires at least two lines")
	// ErrInvalidLine indicates a malformed journal line.
	ErrInvalidLine = newError(KindValidation, "INVALID_LINE", "invalid journal line")
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = newError(KindNotFound, "ENTRY_NOT_FOUND", "journal entry not found")
	// ErrEntryNotEditable indicates the entry left DRAFT.
	ErrEntryNotEditable = newError(KindInvalidState, "ENTRY_NOT_EDITABLE", "journal entry is not editable")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = newError(KindInvalidState, "INVALID_STATUS", "invalid status transition")
	// ErrApprovalRequired indicates posting waits for approval.
	ErrApprovalRequired = newError(KindApprovalRequired, "APPROVAL_REQUIRED", "journal entry requires approval")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = newError(KindInvalidState, "SOURCE_ALREADY_LINKED", "source already linked")

	// ErrWTBNotFound indicates missing working trial balance.
	ErrWTBNotFound = newError(KindNotFound, "WTB_NOT_FOUND", "working trial balance not found")
	// ErrWTBLocked indicates the working trial balance is locked.
	ErrWTBLocked = newError(KindInvalidState, "WTB_LOCKED", "working trial balance is locked")
	// ErrLineNotFound indicates the account has no line in the working trial balance.
	ErrLineNotFound = newError(KindNotFound, "LINE_NOT_FOUND", "working trial balance line not found")
	// ErrColumnNotFound indicates missing adjustment column.
	ErrColumnNotFound = newError(KindNotFound, "COLUMN_NOT_FOUND", "adjustment column not found")

	// ErrReportNotFound indicates missing balance sheet snapshot.
	ErrReportNotFound = newError(KindNotFound, "REPORT_NOT_FOUND", "report not found")
	// ErrReportFinal indicates a finalized report.
	ErrReportFinal = newError(KindInvalidState, "REPORT_FINAL", "report is final")
	// ErrReportUnbalanced indicates finalization of an unbalanced report.
	ErrReportUnbalanced = newError(KindUnbalanced, "REPORT_UNBALANCED", "report is not balanced")

	// ErrValidation indicates malformed input.
	ErrValidation = newError(KindValidation, "VALIDATION_FAILED", "validation failed")
)

// Wrap attaches a detail message to a sentinel error.
func Wrap(base *Error, format string, args ...any) error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf returns the stable code of a ledger error or "INTERNAL".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// KindOf returns the ledger error kind, empty for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
