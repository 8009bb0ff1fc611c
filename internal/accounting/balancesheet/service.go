package balancesheet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TotalsSource returns per-account movements within a window.
type TotalsSource interface {
	Totals(ctx context.Context, opts ledger.TotalsOptions) ([]ledger.Movement, error)
}

// AccountLister lists the chart of accounts.
type AccountLister interface {
	List(ctx context.Context) ([]accounts.Account, error)
}

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Cache is the versioned report cache.
type Cache interface {
	BuildKey(ctx context.Context, orgID int64, kind string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Service maps ledger balances to the statutory balance sheet.
type Service struct {
	totals   TotalsSource
	accounts AccountLister
	repo     Repository
	policy   Policy
	audit    AuditPort
	cache    Cache
	orgID    int64
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(totals TotalsSource, accounts AccountLister, repo Repository, audit AuditPort) *Service {
	return &Service{
		totals:   totals,
		accounts: accounts,
		repo:     repo,
		policy:   DefaultPolicy(),
		audit:    audit,
		orgID:    1,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// WithPolicy replaces the mapping table.
func (s *Service) WithPolicy(p Policy) {
	if len(p.Rules) > 0 {
		s.policy = p
	}
}

// WithCache enables cached reads scoped to orgID.
func (s *Service) WithCache(cache Cache, orgID int64) {
	s.cache = cache
	if orgID > 0 {
		s.orgID = orgID
	}
}

func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Policy exposes the active mapping table.
func (s *Service) Policy() Policy {
	return s.policy
}

// Compute builds the balance sheet directly from the ledger.
func (s *Service) Compute(ctx context.Context, opts GenerateOptions) (Report, error) {
	if opts.ReportDate.IsZero() {
		return Report{}, shared.Wrap(shared.ErrValidation, "report date required")
	}
	list, err := s.accounts.List(ctx)
	if err != nil {
		return Report{}, err
	}
	var current, compared []ledger.Movement
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.totals.Totals(gctx, ledger.TotalsOptions{Window: ledger.Through(opts.ReportDate), IncludeDrafts: opts.IncludeDrafts})
		current = m
		return err
	})
	if opts.ComparativeDate != nil {
		g.Go(func() error {
			m, err := s.totals.Totals(gctx, ledger.TotalsOptions{Window: ledger.Through(*opts.ComparativeDate), IncludeDrafts: opts.IncludeDrafts})
			compared = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	r := Build(s.policy, list, current, compared, opts)
	if !r.IsBalanced {
		s.logger.Warn("balance sheet out of balance",
			slog.String("report_date", r.ReportDate.Format(shared.DateLayout)),
			slog.String("assets", r.TotalAssets.String()),
			slog.String("equity_and_liabilities", r.TotalEquityAndLiabilities.String()),
			slog.String("difference", r.BalanceDifference.String()),
			slog.Int("unmapped", len(r.Unmapped)))
	}
	return r, nil
}

// Generate returns the balance sheet, served from cache when enabled.
func (s *Service) Generate(ctx context.Context, opts GenerateOptions) (Report, error) {
	if s.cache == nil {
		return s.Compute(ctx, opts)
	}
	key, err := s.cache.BuildKey(ctx, s.orgID, string(shared.ReportBalanceSheet),
		shared.DateOf(opts.ReportDate).Format(shared.DateLayout), dateKey(opts.ComparativeDate), fmt.Sprintf("d%t", opts.IncludeDrafts))
	if err != nil {
		s.logger.Warn("build report cache key", slog.Any("error", err))
		return s.Compute(ctx, opts)
	}
	var r Report
	loader := func(ctx context.Context) (any, error) {
		return s.Compute(ctx, opts)
	}
	if err := s.cache.FetchJSON(ctx, key, &r, loader); err != nil {
		return Report{}, err
	}
	return r, nil
}

// Save recomputes the report and stores it. Finalizing requires a balanced
// report.
func (s *Service) Save(ctx context.Context, in SaveInput) (Snapshot, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Bilans na dzień " + shared.DateOf(in.ReportDate).Format(shared.DateLayout)
	}
	r, err := s.Compute(ctx, in.GenerateOptions)
	if err != nil {
		return Snapshot{}, err
	}
	if in.MarkAsFinal && !r.IsBalanced {
		return Snapshot{}, shared.Wrap(shared.ErrReportUnbalanced, "difference %s", r.BalanceDifference.StringFixed(2))
	}
	snap := Snapshot{
		Name:       name,
		ReportDate: r.ReportDate,
		IsFinal:    in.MarkAsFinal,
		IsBalanced: r.IsBalanced,
		Report:     r,
		CreatedBy:  in.ActorID,
	}
	if in.MarkAsFinal {
		now := s.now()
		snap.FinalizedAt = &now
	}
	snap, err = s.repo.Insert(ctx, snap)
	if err != nil {
		return Snapshot{}, err
	}
	s.record(ctx, in.ActorID, "balance_sheet.save", snap.ID, map[string]any{
		"report_date": snap.ReportDate.Format(shared.DateLayout),
		"is_final":    snap.IsFinal,
		"is_balanced": snap.IsBalanced,
		"difference":  r.BalanceDifference.String(),
	})
	return snap, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Snapshot, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) (ListResult, error) {
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Snapshot{}
	}
	pg := internalShared.NewPagination(f.Page, f.PerPage, total)
	return ListResult{Items: items, Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages}, nil
}

// Delete removes a snapshot unless it is final.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if snap.IsFinal {
		return shared.Wrap(shared.ErrReportFinal, "balance sheet %d", id)
	}
	if err := s.repo.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "balance_sheet.delete", id, map[string]any{
		"report_date": snap.ReportDate.Format(shared.DateLayout),
	})
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "balance_sheet_report",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit balance sheet", slog.String("action", action), slog.Any("error", err))
	}
}
