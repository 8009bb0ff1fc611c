package wtb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// TrialBalancer computes an uncached trial balance.
type TrialBalancer interface {
	Compute(ctx context.Context, opts reports.Options) (reports.TrialBalance, error)
}

// PeriodLookup resolves periods by id.
type PeriodLookup interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// CacheInvalidator drops organization scoped report caches.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, orgID int64, kinds ...string) error
}

// Service manages working trial balances.
type Service struct {
	repo    Repository
	tb      TrialBalancer
	periods PeriodLookup
	audit   AuditPort
	cache   CacheInvalidator
	logger  *slog.Logger
	orgID   int64
	now     func() time.Time
}

func NewService(repo Repository, tb TrialBalancer, periods PeriodLookup, audit AuditPort) *Service {
	return &Service{repo: repo, tb: tb, periods: periods, audit: audit, logger: slog.Default(), orgID: 1, now: time.Now}
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

// WithOrganization scopes code numbering and cache invalidation.
func (s *Service) WithOrganization(orgID int64) {
	if orgID > 0 {
		s.orgID = orgID
	}
}

func (s *Service) WithCache(cache CacheInvalidator) {
	s.cache = cache
}

func (s *Service) Get(ctx context.Context, id int64) (WorkingTrialBalance, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) (ListResult, error) {
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []WorkingTrialBalance{}
	}
	pg := internalShared.NewPagination(f.Page, f.PerPage, total)
	return ListResult{Items: items, Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages}, nil
}

// Summary returns unadjusted and adjusted totals.
func (s *Service) Summary(ctx context.Context, id int64) (Summary, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(w), nil
}

// Create snapshots the trial balance of a period into a new draft WTB.
// Zero balance accounts are kept so they can receive adjustments.
func (s *Service) Create(ctx context.Context, in CreateInput) (WorkingTrialBalance, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return WorkingTrialBalance{}, shared.Wrap(shared.ErrValidation, "name required")
	}
	period, err := s.periods.Get(ctx, in.PeriodID)
	if err != nil {
		return WorkingTrialBalance{}, err
	}
	asOf := period.EndDate
	if in.AsOfDate != nil {
		asOf = shared.DateOf(*in.AsOfDate)
	}
	tb, err := s.tb.Compute(ctx, reports.Options{AsOfDate: asOf, IncludeZeroBalances: true})
	if err != nil {
		return WorkingTrialBalance{}, err
	}

	w := WorkingTrialBalance{
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		FiscalYearID: period.FiscalYearID,
		PeriodID:     period.ID,
		AsOfDate:     asOf,
		Status:       StatusDraft,
		CreatedBy:    in.ActorID,
		Columns:      []Column{},
		Lines:        snapshotLines(tb),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, s.orgID, asOf.Year())
		if err != nil {
			return err
		}
		w.Code = fmt.Sprintf("WTB-%04d-%03d", asOf.Year(), seq)
		inserted, err := tx.Insert(ctx, w)
		if err != nil {
			return err
		}
		w = inserted
		return nil
	})
	if err != nil {
		return WorkingTrialBalance{}, err
	}
	s.record(ctx, in.ActorID, "wtb.create", w.ID, map[string]any{
		"code":        w.Code,
		"as_of":       w.AsOfDate.Format(shared.DateLayout),
		"lines":       len(w.Lines),
		"tb_balanced": tb.IsBalanced,
	})
	s.invalidate(ctx)
	return w, nil
}

func snapshotLines(tb reports.TrialBalance) []Line {
	out := make([]Line, 0, len(tb.Lines))
	for _, l := range tb.Lines {
		if l.IsGroupHeader {
			continue
		}
		line := Line{
			AccountID:        l.AccountID,
			AccountCode:      l.Code,
			AccountName:      l.Name,
			AccountType:      l.Type,
			NormalBalance:    l.NormalBalance,
			UnadjustedDebit:  l.DebitBalance,
			UnadjustedCredit: l.CreditBalance,
			Adjustments:      []Adjustment{},
		}
		line.Recompute()
		out = append(out, line)
	}
	return out
}

// AddColumn appends an adjustment column to a draft WTB.
func (s *Service) AddColumn(ctx context.Context, in ColumnInput) (Column, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Column{}, shared.Wrap(shared.ErrValidation, "column name required")
	}
	if in.Type == "" {
		in.Type = ColumnAdjusting
	}
	if !in.Type.Valid() {
		return Column{}, shared.Wrap(shared.ErrValidation, "unknown column type %q", in.Type)
	}
	var col Column
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		w, err := tx.GetForUpdate(ctx, in.WTBID)
		if err != nil {
			return err
		}
		if w.Locked() {
			return shared.Wrap(shared.ErrWTBLocked, "wtb %s", w.Code)
		}
		col, err = tx.InsertColumn(ctx, Column{
			WTBID:          w.ID,
			Name:           name,
			Type:           in.Type,
			JournalEntryID: in.JournalEntryID,
			Position:       len(w.Columns) + 1,
		})
		return err
	})
	if err != nil {
		return Column{}, err
	}
	s.record(ctx, in.ActorID, "wtb.column.add", in.WTBID, map[string]any{"column_id": col.ID, "name": col.Name, "type": col.Type})
	return col, nil
}

// RecordAdjustment sets the adjustment for (column, account) and recomputes
// the adjusted columns of that line.
func (s *Service) RecordAdjustment(ctx context.Context, in AdjustmentInput) (Line, error) {
	var before, after Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		w, err := tx.GetForUpdate(ctx, in.WTBID)
		if err != nil {
			return err
		}
		if w.Locked() {
			return shared.Wrap(shared.ErrWTBLocked, "wtb %s", w.Code)
		}
		if !hasColumn(w.Columns, in.ColumnID) {
			return shared.Wrap(shared.ErrColumnNotFound, "column %d in %s", in.ColumnID, w.Code)
		}
		idx := -1
		for i, l := range w.Lines {
			if l.AccountID == in.AccountID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return shared.Wrap(shared.ErrLineNotFound, "account %d in %s", in.AccountID, w.Code)
		}
		line := w.Lines[idx]
		before = line
		line.Adjustments = upsertAdjustment(line.Adjustments, Adjustment{
			ColumnID:    in.ColumnID,
			Amount:      in.Amount,
			Reference:   strings.TrimSpace(in.Reference),
			Description: strings.TrimSpace(in.Description),
		})
		line.Recompute()
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		after = line
		return nil
	})
	if err != nil {
		return Line{}, err
	}
	s.record(ctx, in.ActorID, "wtb.adjustment.record", in.WTBID, map[string]any{
		"column_id":  in.ColumnID,
		"account_id": in.AccountID,
		"amount":     in.Amount.String(),
		"before":     lineSnapshot(before),
		"after":      lineSnapshot(after),
	})
	return after, nil
}

func hasColumn(cols []Column, id int64) bool {
	for _, c := range cols {
		if c.ID == id {
			return true
		}
	}
	return false
}

// upsertAdjustment replaces the entry for the column in place, appends a new
// one, or drops it when the amount is zero.
func upsertAdjustment(list []Adjustment, adj Adjustment) []Adjustment {
	out := make([]Adjustment, 0, len(list)+1)
	replaced := false
	for _, a := range list {
		if a.ColumnID != adj.ColumnID {
			out = append(out, a)
			continue
		}
		replaced = true
		if !adj.Amount.IsZero() {
			out = append(out, adj)
		}
	}
	if !replaced && !adj.Amount.IsZero() {
		out = append(out, adj)
	}
	return out
}

// Lock makes the WTB terminal. An unbalanced WTB can still be locked; the
// result then carries a warning which is also logged and audited.
func (s *Service) Lock(ctx context.Context, id, actorID int64) (LockResult, error) {
	var res LockResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		w, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Locked() {
			return shared.Wrap(shared.ErrWTBLocked, "wtb %s already locked", w.Code)
		}
		now := s.now()
		actor := actorID
		w.Status = StatusLocked
		w.LockedAt = &now
		w.LockedBy = &actor
		if err := tx.UpdateStatus(ctx, w); err != nil {
			return err
		}
		sum := Summarize(w)
		res = LockResult{WTB: w, IsBalanced: sum.IsBalanced, Difference: sum.Difference}
		if !sum.IsBalanced {
			res.Warning = fmt.Sprintf("locked out of balance: adjusted debit %s, credit %s", sum.Adjusted.Debit.StringFixed(2), sum.Adjusted.Credit.StringFixed(2))
		}
		return nil
	})
	if err != nil {
		return LockResult{}, err
	}
	meta := map[string]any{"before": StatusDraft, "after": StatusLocked, "out_of_balance": !res.IsBalanced}
	if !res.IsBalanced {
		meta["difference"] = res.Difference.String()
		s.logger.Warn("working trial balance locked out of balance",
			slog.Int64("wtb_id", res.WTB.ID),
			slog.String("code", res.WTB.Code),
			slog.String("difference", res.Difference.String()))
	}
	s.record(ctx, actorID, "wtb.lock", id, meta)
	s.invalidate(ctx)
	return res, nil
}

// Delete removes a draft WTB.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		w, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Locked() {
			return shared.Wrap(shared.ErrWTBLocked, "wtb %s", w.Code)
		}
		code = w.Code
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "wtb.delete", id, map[string]any{"code": code})
	s.invalidate(ctx)
	return nil
}

func lineSnapshot(l Line) map[string]any {
	return map[string]any{
		"adjusted_debit":  l.AdjustedDebit.StringFixed(2),
		"adjusted_credit": l.AdjustedCredit.StringFixed(2),
		"adjustments":     len(l.Adjustments),
		"adjustment_sum":  l.AdjustmentTotal().StringFixed(2),
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "working_trial_balance",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, s.orgID, string(shared.ReportWorkingTB)); err != nil {
		s.logger.Warn("invalidate report cache", slog.Int64("org_id", s.orgID), slog.Any("error", err))
	}
}
