package journals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ApprovalModule tags journal approvals in the approval log.
const ApprovalModule = "journal_entry"

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

type ApprovalPort interface {
	Record(ctx context.Context, log internalShared.ApprovalLog) error
}

// AccountDirectory resolves accounts referenced by lines.
type AccountDirectory interface {
	Lookup(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
}

// PeriodCalendar resolves periods for entry dates.
type PeriodCalendar interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
	FindByDate(ctx context.Context, date time.Time) (periods.Period, error)
	NextOpenAfter(ctx context.Context, date time.Time) (periods.Period, error)
}

// CacheInvalidator drops organization scoped report caches.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, orgID int64, kinds ...string) error
}

// PostingObserver receives posting outcomes for metrics.
type PostingObserver interface {
	EntryPosted(entryType string, lines int)
	PostingFailed(code string)
}

type Service struct {
	repo         Repository
	accounts     AccountDirectory
	periods      PeriodCalendar
	audit        AuditPort
	approvals    ApprovalPort
	cache        CacheInvalidator
	observer     PostingObserver
	logger       *slog.Logger
	orgID        int64
	baseCurrency string
	now          func() time.Time
}

func NewService(repo Repository, accounts AccountDirectory, periods PeriodCalendar, audit AuditPort) *Service {
	return &Service{
		repo:         repo,
		accounts:     accounts,
		periods:      periods,
		audit:        audit,
		logger:       slog.Default(),
		orgID:        1,
		baseCurrency: "PLN",
		now:          time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// WithOrganization sets the numbering scope and the base currency.
func (s *Service) WithOrganization(orgID int64, baseCurrency string) {
	if orgID > 0 {
		s.orgID = orgID
	}
	if c := strings.TrimSpace(baseCurrency); c != "" {
		s.baseCurrency = strings.ToUpper(c)
	}
}

func (s *Service) WithApprovals(approvals ApprovalPort) {
	s.approvals = approvals
}

func (s *Service) WithCache(cache CacheInvalidator) {
	s.cache = cache
}

func (s *Service) WithObserver(observer PostingObserver) {
	s.observer = observer
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// Query lists entries page by page.
func (s *Service) Query(ctx context.Context, q Query) (QueryResult, error) {
	entries, total, err := s.repo.Query(ctx, q)
	if err != nil {
		return QueryResult{}, err
	}
	pg := internalShared.NewPagination(q.Page, q.PerPage, total)
	if entries == nil {
		entries = []JournalEntry{}
	}
	return QueryResult{Entries: entries, Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages}, nil
}

// Statistics aggregates entry counts by status and type.
func (s *Service) Statistics(ctx context.Context, f StatsFilter) (Statistics, error) {
	return s.repo.Statistics(ctx, f)
}

func formatNumber(t EntryType, date time.Time, seq int64) string {
	return fmt.Sprintf("%s/%04d/%02d/%04d", t.Prefix(), date.Year(), int(date.Month()), seq)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// NextEntryNumber previews the number the next entry of this type and date
// would receive. Nothing is allocated.
func (s *Service) NextEntryNumber(ctx context.Context, t EntryType, date time.Time) (string, error) {
	if !t.Valid() {
		return "", shared.Wrap(shared.ErrValidation, "unknown entry type %q", t)
	}
	date = shared.DateOf(date)
	seq, err := s.repo.PeekSequence(ctx, s.orgID, t, date.Year(), int(date.Month()))
	if err != nil {
		return "", err
	}
	return formatNumber(t, date, seq), nil
}

// openPeriodFor returns the open period containing date.
func (s *Service) openPeriodFor(ctx context.Context, date time.Time) (periods.Period, error) {
	period, err := s.periods.FindByDate(ctx, date)
	if err != nil {
		return periods.Period{}, err
	}
	if !period.IsOpen() {
		return periods.Period{}, shared.Wrap(shared.ErrPeriodClosed, "period %s", period.Code)
	}
	return period, nil
}

// Create validates and stores a new draft entry.
func (s *Service) Create(ctx context.Context, in CreateInput) (JournalEntry, error) {
	entry, err := s.create(ctx, in)
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.create", entry.ID, map[string]any{"after": snapshot(entry)})
	s.invalidate(ctx)
	return entry, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (JournalEntry, error) {
	entry, err := s.prepare(ctx, in, nil)
	if err != nil {
		return JournalEntry{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.insert(ctx, tx, &entry)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// prepare validates input and builds an unsaved draft. Checks run in order:
// line shape, period, accounts, balance.
func (s *Service) prepare(ctx context.Context, in CreateInput, reversalOf *int64) (JournalEntry, error) {
	if in.EntryType == "" {
		in.EntryType = EntryTypeStandard
	}
	if !in.EntryType.Valid() {
		return JournalEntry{}, shared.Wrap(shared.ErrValidation, "unknown entry type %q", in.EntryType)
	}
	if in.EntryDate.IsZero() {
		return JournalEntry{}, shared.Wrap(shared.ErrValidation, "entry date required")
	}
	if in.SourceID != nil && strings.TrimSpace(in.SourceModule) == "" {
		return JournalEntry{}, shared.Wrap(shared.ErrValidation, "source module required with source id")
	}
	date := shared.DateOf(in.EntryDate)
	lines, err := buildLines(in.Lines, s.baseCurrency)
	if err != nil {
		return JournalEntry{}, err
	}
	period, err := s.openPeriodFor(ctx, date)
	if err != nil {
		return JournalEntry{}, err
	}
	if _, err := s.resolveAccounts(ctx, lines); err != nil {
		return JournalEntry{}, err
	}
	debit, credit, err := checkBalanced(lines)
	if err != nil {
		return JournalEntry{}, err
	}
	return JournalEntry{
		RefID:            uuid.New(),
		EntryDate:        date,
		EntryType:        in.EntryType,
		Status:           StatusDraft,
		PeriodID:         period.ID,
		Description:      strings.TrimSpace(in.Description),
		Reference:        strings.TrimSpace(in.Reference),
		TotalDebit:       debit,
		TotalCredit:      credit,
		RequiresApproval: in.RequiresApproval,
		ReversalOfID:     reversalOf,
		SourceModule:     strings.TrimSpace(in.SourceModule),
		SourceID:         in.SourceID,
		CreatedBy:        in.ActorID,
		Lines:            lines,
	}, nil
}

// insert allocates the entry number and stores the draft with its lines.
func (s *Service) insert(ctx context.Context, tx TxRepository, entry *JournalEntry) error {
	seq, err := tx.NextSequence(ctx, s.orgID, entry.EntryType, entry.EntryDate.Year(), int(entry.EntryDate.Month()))
	if err != nil {
		return err
	}
	entry.EntryNumber = formatNumber(entry.EntryType, entry.EntryDate, seq)
	inserted, err := tx.InsertEntry(ctx, *entry)
	if err != nil {
		return err
	}
	if inserted.SourceID != nil {
		if err := tx.LinkSource(ctx, inserted.SourceModule, *inserted.SourceID, inserted.ID); err != nil {
			return err
		}
	}
	*entry = inserted
	return nil
}

// Update changes a draft entry. Lines are re-validated as on create and the
// period is re-resolved when the date changes. Moving the date into another
// month allocates a number from that month's sequence.
func (s *Service) Update(ctx context.Context, in UpdateInput) (JournalEntry, error) {
	var before, after JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if !current.Status.Editable() {
			return shared.Wrap(shared.ErrEntryNotEditable, "entry %s is %s", current.EntryNumber, current.Status)
		}
		before = current
		next := current
		if in.EntryDate != nil {
			next.EntryDate = shared.DateOf(*in.EntryDate)
		}
		if in.Description != nil {
			next.Description = strings.TrimSpace(*in.Description)
		}
		if in.Reference != nil {
			next.Reference = strings.TrimSpace(*in.Reference)
		}
		if in.RequiresApproval != nil {
			next.RequiresApproval = *in.RequiresApproval
		}
		if in.EntryDate != nil && !next.EntryDate.Equal(current.EntryDate) {
			period, err := s.openPeriodFor(ctx, next.EntryDate)
			if err != nil {
				return err
			}
			next.PeriodID = period.ID
			if !sameMonth(next.EntryDate, current.EntryDate) {
				seq, err := tx.NextSequence(ctx, s.orgID, next.EntryType, next.EntryDate.Year(), int(next.EntryDate.Month()))
				if err != nil {
					return err
				}
				next.EntryNumber = formatNumber(next.EntryType, next.EntryDate, seq)
			}
		}
		if in.Lines != nil {
			lines, err := buildLines(in.Lines, s.baseCurrency)
			if err != nil {
				return err
			}
			if _, err := s.resolveAccounts(ctx, lines); err != nil {
				return err
			}
			debit, credit, err := checkBalanced(lines)
			if err != nil {
				return err
			}
			stored, err := tx.ReplaceLines(ctx, next.ID, lines)
			if err != nil {
				return err
			}
			next.Lines, next.TotalDebit, next.TotalCredit = stored, debit, credit
		}
		if err := tx.UpdateEntry(ctx, next); err != nil {
			return err
		}
		after = next
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.update", after.ID, map[string]any{"before": snapshot(before), "after": snapshot(after)})
	s.invalidate(ctx)
	return after, nil
}

// Delete removes a draft entry.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	var before JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.Editable() {
			return shared.Wrap(shared.ErrEntryNotEditable, "entry %s is %s", current.EntryNumber, current.Status)
		}
		before = current
		return tx.DeleteEntry(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "journal.delete", id, map[string]any{"before": snapshot(before)})
	s.invalidate(ctx)
	return nil
}

// Post commits an entry to the ledger. The balance is checked again against
// the stored lines before any ledger row is written.
func (s *Service) Post(ctx context.Context, in PostInput) (JournalEntry, ledger.PostResult, error) {
	var entry JournalEntry
	var res ledger.PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, res, err = s.postInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		if s.observer != nil {
			s.observer.PostingFailed(shared.CodeOf(err))
		}
		return JournalEntry{}, ledger.PostResult{}, err
	}
	if s.observer != nil {
		s.observer.EntryPosted(string(entry.EntryType), len(entry.Lines))
	}
	s.record(ctx, in.ActorID, "journal.post", entry.ID, map[string]any{
		"number":           entry.EntryNumber,
		"records_created":  res.RecordsCreated,
		"balances_updated": res.BalancesUpdated,
		"bypass_approval":  in.BypassApproval,
	})
	s.invalidate(ctx)
	return entry, res, nil
}

func (s *Service) postInTx(ctx context.Context, tx TxRepository, in PostInput) (JournalEntry, ledger.PostResult, error) {
	entry, err := tx.GetForUpdate(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, ledger.PostResult{}, err
	}
	if !entry.Status.Postable() {
		return JournalEntry{}, ledger.PostResult{}, shared.Wrap(shared.ErrInvalidStatus, "entry %s is %s", entry.EntryNumber, entry.Status)
	}
	period, err := tx.GetPeriodForUpdate(ctx, entry.PeriodID)
	if err != nil {
		return JournalEntry{}, ledger.PostResult{}, err
	}
	if !period.IsOpen() {
		return JournalEntry{}, ledger.PostResult{}, shared.Wrap(shared.ErrPeriodClosed, "period %s", period.Code)
	}
	if entry.RequiresApproval && entry.ApprovedAt == nil && !in.BypassApproval {
		return JournalEntry{}, ledger.PostResult{}, shared.Wrap(shared.ErrApprovalRequired, "entry %s", entry.EntryNumber)
	}
	if _, _, err := checkBalanced(entry.Lines); err != nil {
		s.logger.Error("stored journal entry unbalanced", slog.Int64("entry_id", entry.ID), slog.String("number", entry.EntryNumber), slog.Any("error", err))
		return JournalEntry{}, ledger.PostResult{}, err
	}
	accs, err := s.resolveAccounts(ctx, entry.Lines)
	if err != nil {
		return JournalEntry{}, ledger.PostResult{}, err
	}
	now := s.now()
	res, err := ledger.PostToGL(ctx, tx, ledger.Posting{
		EntryID:     entry.ID,
		EntryNumber: entry.EntryNumber,
		PeriodID:    entry.PeriodID,
		EntryDate:   entry.EntryDate,
		PostedAt:    now,
		Lines:       toPostingLines(entry.Lines, accs),
	})
	if err != nil {
		return JournalEntry{}, ledger.PostResult{}, err
	}
	actor := in.ActorID
	entry.Status = StatusPosted
	entry.PostedAt = &now
	entry.PostedBy = &actor
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return JournalEntry{}, ledger.PostResult{}, err
	}
	return entry, res, nil
}

// Copy creates a new draft with the lines of an existing entry.
func (s *Service) Copy(ctx context.Context, in CopyInput) (JournalEntry, error) {
	source, err := s.repo.Get(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	date := source.EntryDate
	if in.EntryDate != nil {
		date = *in.EntryDate
	}
	entryType := source.EntryType
	if entryType == EntryTypeReversal {
		entryType = EntryTypeStandard
	}
	entry, err := s.create(ctx, CreateInput{
		EntryDate:        date,
		EntryType:        entryType,
		Description:      source.Description,
		Reference:        source.Reference,
		RequiresApproval: source.RequiresApproval,
		ActorID:          in.ActorID,
		Lines:            toInputs(source.Lines),
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.copy", entry.ID, map[string]any{"source_id": source.ID, "source_number": source.EntryNumber})
	s.invalidate(ctx)
	return entry, nil
}

// BulkPost posts each entry independently and reports per item outcomes.
func (s *Service) BulkPost(ctx context.Context, ids []int64, actorID int64, bypassApproval bool) BulkResult {
	return bulk(ids, func(id int64) error {
		_, _, err := s.Post(ctx, PostInput{EntryID: id, ActorID: actorID, BypassApproval: bypassApproval})
		return err
	})
}

// BulkDelete deletes each draft independently and reports per item outcomes.
func (s *Service) BulkDelete(ctx context.Context, ids []int64, actorID int64) BulkResult {
	return bulk(ids, func(id int64) error {
		return s.Delete(ctx, id, actorID)
	})
}

func bulk(ids []int64, fn func(int64) error) BulkResult {
	res := BulkResult{Results: make([]BulkItemResult, 0, len(ids))}
	for _, id := range ids {
		item := BulkItemResult{ID: id, Success: true}
		if err := fn(id); err != nil {
			item.Success = false
			item.Code = shared.CodeOf(err)
			item.Error = err.Error()
			res.Failed++
		} else {
			res.Succeeded++
		}
		res.Results = append(res.Results, item)
	}
	res.Success = res.Failed == 0
	return res
}

// Validate runs the post-time checks without changing anything.
func (s *Service) Validate(ctx context.Context, id int64) (ValidationResult, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return ValidationResult{}, err
	}
	res := ValidationResult{EntryID: entry.ID, Errors: []Issue{}, Warnings: []Issue{}}
	addErr := func(err error, line JournalLine) {
		res.Errors = append(res.Errors, Issue{LineNumber: line.LineNumber, AccountID: line.AccountID, Code: shared.CodeOf(err), Message: err.Error()})
	}

	if !entry.Status.Postable() {
		addErr(shared.Wrap(shared.ErrInvalidStatus, "entry is %s", entry.Status), JournalLine{})
	}
	if period, err := s.periods.Get(ctx, entry.PeriodID); err != nil {
		addErr(err, JournalLine{})
	} else if !period.IsOpen() {
		addErr(shared.Wrap(shared.ErrPeriodClosed, "period %s", period.Code), JournalLine{})
	}
	if len(entry.Lines) < 2 {
		addErr(shared.ErrTooFewLines, JournalLine{})
	}

	accs, err := s.accounts.Lookup(ctx, lineAccountIDs(entry.Lines))
	if err != nil {
		return ValidationResult{}, err
	}
	for _, l := range entry.Lines {
		acc, ok := accs[l.AccountID]
		if err := accountIssue(l, acc, ok); err != nil {
			addErr(err, l)
			continue
		}
		if opposite(acc.NormalBalance, l) {
			res.Warnings = append(res.Warnings, Issue{
				LineNumber: l.LineNumber,
				AccountID:  l.AccountID,
				Code:       "OPPOSITE_NORMAL_BALANCE",
				Message:    fmt.Sprintf("line %d posts against the %s normal balance of account %s", l.LineNumber, strings.ToLower(string(acc.NormalBalance)), acc.Code),
			})
		}
	}

	res.TotalDebit, res.TotalCredit = totals(entry.Lines)
	res.Difference = res.TotalDebit.Sub(res.TotalCredit)
	res.IsBalanced = res.Difference.IsZero()
	if !res.IsBalanced {
		addErr(shared.Wrap(shared.ErrUnbalanced, "difference %s", res.Difference.StringFixed(2)), JournalLine{})
	}
	if !entry.TotalDebit.Equal(res.TotalDebit) || !entry.TotalCredit.Equal(res.TotalCredit) {
		addErr(shared.Wrap(shared.ErrUnbalanced, "stored totals differ from lines"), JournalLine{})
	}

	approved := !entry.RequiresApproval || entry.ApprovedAt != nil
	if !approved {
		res.Warnings = append(res.Warnings, Issue{Code: shared.ErrApprovalRequired.Code, Message: "entry requires approval before posting"})
	}
	res.IsValid = len(res.Errors) == 0
	res.CanPost = res.IsValid && approved
	return res, nil
}

func opposite(normal shared.NormalBalance, l JournalLine) bool {
	if l.IsDebit() {
		return normal == shared.NormalCredit
	}
	return normal == shared.NormalDebit && l.BaseCreditAmount.IsPositive()
}

// Reverse posts a mirror entry and marks the original REVERSED. When the
// original period has closed the reversal lands in the next open period.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	original, err := s.repo.Get(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if original.Status != StatusPosted {
		return JournalEntry{}, shared.Wrap(shared.ErrInvalidStatus, "entry %s is %s", original.EntryNumber, original.Status)
	}
	target := original.EntryDate
	if in.Date != nil {
		target = shared.DateOf(*in.Date)
	}
	period, err := s.periods.FindByDate(ctx, target)
	if err != nil {
		return JournalEntry{}, err
	}
	if !period.IsOpen() {
		next, err := s.periods.NextOpenAfter(ctx, period.EndDate.AddDate(0, 0, 1))
		if err != nil {
			return JournalEntry{}, err
		}
		target = next.StartDate
	}
	memo := strings.TrimSpace(in.Memo)
	if memo == "" {
		memo = "Reversal of " + original.EntryNumber
	}
	origID := original.ID
	reversal, err := s.prepare(ctx, CreateInput{
		EntryDate:   target,
		EntryType:   EntryTypeReversal,
		Description: memo,
		Reference:   original.EntryNumber,
		ActorID:     in.ActorID,
		Lines:       swapSides(original.Lines),
	}, &origID)
	if err != nil {
		return JournalEntry{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, original.ID)
		if err != nil {
			return err
		}
		if current.Status != StatusPosted {
			return shared.Wrap(shared.ErrInvalidStatus, "entry %s is %s", current.EntryNumber, current.Status)
		}
		if err := s.insert(ctx, tx, &reversal); err != nil {
			return err
		}
		posted, _, err := s.postInTx(ctx, tx, PostInput{EntryID: reversal.ID, ActorID: in.ActorID, BypassApproval: true})
		if err != nil {
			return err
		}
		now := s.now()
		actor := in.ActorID
		current.Status = StatusReversed
		current.ReversedAt = &now
		current.ReversedBy = &actor
		if err := tx.UpdateEntry(ctx, current); err != nil {
			return err
		}
		reversal = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.reverse", original.ID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.EntryNumber,
	})
	s.invalidate(ctx)
	return reversal, nil
}

// SubmitForApproval moves a draft to PENDING_APPROVAL.
func (s *Service) SubmitForApproval(ctx context.Context, id, actorID int64, note string) (JournalEntry, error) {
	entry, err := s.transition(ctx, id, func(e *JournalEntry) error {
		if e.Status != StatusDraft {
			return shared.Wrap(shared.ErrInvalidStatus, "entry %s is %s", e.EntryNumber, e.Status)
		}
		e.Status = StatusPendingApproval
		e.RequiresApproval = true
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordApproval(ctx, entry, actorID, internalShared.ApprovalSubmit, note)
	s.record(ctx, actorID, "journal.submit", entry.ID, map[string]any{"status": entry.Status})
	return entry, nil
}

// Approve stamps approval on a pending entry. The entry stays pending until posted.
func (s *Service) Approve(ctx context.Context, id, actorID int64, note string) (JournalEntry, error) {
	entry, err := s.transition(ctx, id, func(e *JournalEntry) error {
		if e.Status != StatusPendingApproval {
			return shared.Wrap(shared.ErrInvalidStatus, "entry %s is %s", e.EntryNumber, e.Status)
		}
		if e.ApprovedAt != nil {
			return shared.Wrap(shared.ErrInvalidStatus, "entry %s already approved", e.EntryNumber)
		}
		now := s.now()
		actor := actorID
		e.ApprovedAt = &now
		e.ApprovedBy = &actor
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordApproval(ctx, entry, actorID, internalShared.ApprovalApprove, note)
	s.record(ctx, actorID, "journal.approve", entry.ID, map[string]any{"approved_by": actorID})
	return entry, nil
}

func (s *Service) transition(ctx context.Context, id int64, fn func(*JournalEntry) error) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		if err := tx.UpdateEntry(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	return entry, err
}

func (s *Service) recordApproval(ctx context.Context, entry JournalEntry, actorID int64, action internalShared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, internalShared.ApprovalLog{
		Module:  ApprovalModule,
		RefID:   entry.RefID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	}); err != nil {
		s.logger.Warn("record approval", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	})
}

// invalidate drops report caches. Failures are logged only.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	kinds := shared.LedgerReports()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	if err := s.cache.Invalidate(ctx, s.orgID, names...); err != nil {
		s.logger.Warn("invalidate report cache", slog.Int64("org_id", s.orgID), slog.Any("error", err))
	}
}

// snapshot is the audit representation of an entry.
func snapshot(e JournalEntry) map[string]any {
	return map[string]any{
		"number":       e.EntryNumber,
		"status":       e.Status,
		"entry_date":   e.EntryDate.Format(shared.DateLayout),
		"period_id":    e.PeriodID,
		"total_debit":  e.TotalDebit.StringFixed(2),
		"total_credit": e.TotalCredit.StringFixed(2),
		"lines":        len(e.Lines),
	}
}
