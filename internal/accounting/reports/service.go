package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TotalsSource returns per-account movements within a window.
type TotalsSource interface {
	Totals(ctx context.Context, opts ledger.TotalsOptions) ([]ledger.Movement, error)
}

// AccountLister lists the chart of accounts.
type AccountLister interface {
	List(ctx context.Context) ([]accounts.Account, error)
}

// Cache is the versioned report cache.
type Cache interface {
	BuildKey(ctx context.Context, orgID int64, kind string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Service assembles trial balances and income statements from ledger totals.
type Service struct {
	totals   TotalsSource
	accounts AccountLister
	cache    Cache
	orgID    int64
	logger   *slog.Logger
	onCheck  func(TrialBalance)
}

func NewService(totals TotalsSource, accounts AccountLister) *Service {
	return &Service{totals: totals, accounts: accounts, orgID: 1, logger: slog.Default()}
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

// OnImbalance registers a hook called when a computed trial balance does not
// balance.
func (s *Service) OnImbalance(fn func(TrialBalance)) {
	s.onCheck = fn
}

// Compute builds a trial balance directly from the ledger.
func (s *Service) Compute(ctx context.Context, opts Options) (TrialBalance, error) {
	if !opts.GroupBy.Valid() {
		return TrialBalance{}, shared.Wrap(shared.ErrValidation, "unknown group by %q", opts.GroupBy)
	}
	if opts.AsOfDate.IsZero() {
		return TrialBalance{}, shared.Wrap(shared.ErrValidation, "as of date required")
	}
	list, err := s.accounts.List(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	movements, err := s.totals.Totals(ctx, ledger.TotalsOptions{Window: ledger.Through(opts.AsOfDate)})
	if err != nil {
		return TrialBalance{}, err
	}
	tb := BuildTrialBalance(list, movements, opts)
	if !tb.IsBalanced {
		s.logger.Error("trial balance out of balance",
			slog.String("as_of", tb.AsOfDate.Format(shared.DateLayout)),
			slog.String("debit", tb.Totals.Debit.String()),
			slog.String("credit", tb.Totals.Credit.String()),
			slog.String("difference", tb.OutOfBalanceAmount.String()))
		if s.onCheck != nil {
			s.onCheck(tb)
		}
	}
	return tb, nil
}

// Generate returns a trial balance, served from cache when enabled.
func (s *Service) Generate(ctx context.Context, opts Options) (TrialBalance, error) {
	loader := func(ctx context.Context) (any, error) {
		return s.Compute(ctx, opts)
	}
	if s.cache == nil {
		return s.Compute(ctx, opts)
	}
	key, err := s.cache.BuildKey(ctx, s.orgID, string(shared.ReportTrialBalance), tbKeyParts(opts)...)
	if err != nil {
		s.logger.Warn("build report cache key", slog.Any("error", err))
		return s.Compute(ctx, opts)
	}
	var tb TrialBalance
	if err := s.cache.FetchJSON(ctx, key, &tb, loader); err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

// GenerateComparative computes the current and every compared trial balance
// concurrently and joins them by account.
func (s *Service) GenerateComparative(ctx context.Context, opts ComparativeOptions) (ComparativeTrialBalance, error) {
	if len(opts.CompareDates) == 0 {
		return ComparativeTrialBalance{}, shared.Wrap(shared.ErrValidation, "at least one compare date required")
	}
	base := Options{Filter: opts.Filter, IncludeZeroBalances: true}
	current := base
	current.AsOfDate = opts.CurrentAsOfDate

	compared := make([]TrialBalance, len(opts.CompareDates))
	var cur TrialBalance
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tb, err := s.Generate(gctx, current)
		if err != nil {
			return err
		}
		cur = tb
		return nil
	})
	for i, date := range opts.CompareDates {
		i, date := i, date
		g.Go(func() error {
			o := base
			o.AsOfDate = date
			tb, err := s.Generate(gctx, o)
			if err != nil {
				return err
			}
			compared[i] = tb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ComparativeTrialBalance{}, err
	}
	return BuildComparative(cur, compared, opts.HighlightThreshold), nil
}

// ProfitAndLoss builds the income statement for from..to inclusive.
func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	from, to = shared.DateOf(from), shared.DateOf(to)
	if to.Before(from) {
		return ProfitAndLoss{}, shared.Wrap(shared.ErrValidation, "range ends before it starts")
	}
	loader := func(ctx context.Context) (any, error) {
		list, err := s.accounts.List(ctx)
		if err != nil {
			return ProfitAndLoss{}, err
		}
		movements, err := s.totals.Totals(ctx, ledger.TotalsOptions{Window: ledger.Between(from, to)})
		if err != nil {
			return ProfitAndLoss{}, err
		}
		return BuildProfitAndLoss(list, movements, from, to), nil
	}
	key := ""
	if s.cache != nil {
		var err error
		key, err = s.cache.BuildKey(ctx, s.orgID, string(shared.ReportProfitLoss), from.Format(shared.DateLayout), to.Format(shared.DateLayout))
		if err != nil {
			s.logger.Warn("build report cache key", slog.Any("error", err))
			key = ""
		}
	}
	if key == "" {
		value, err := loader(ctx)
		if err != nil {
			return ProfitAndLoss{}, err
		}
		return value.(ProfitAndLoss), nil
	}
	var pl ProfitAndLoss
	if err := s.cache.FetchJSON(ctx, key, &pl, loader); err != nil {
		return ProfitAndLoss{}, err
	}
	return pl, nil
}

func tbKeyParts(opts Options) []string {
	classes := append([]string(nil), opts.Filter.Classes...)
	sort.Strings(classes)
	group := opts.GroupBy
	if group == "" {
		group = GroupNone
	}
	return []string{
		shared.DateOf(opts.AsOfDate).Format(shared.DateLayout),
		string(group),
		"c" + strings.Join(classes, ","),
		"r" + opts.Filter.CodeFrom + "~" + opts.Filter.CodeTo,
		fmt.Sprintf("a%t", opts.Filter.ActiveOnly),
		fmt.Sprintf("z%t", opts.IncludeZeroBalances),
	}
}
