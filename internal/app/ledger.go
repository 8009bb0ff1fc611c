package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balancesheet"
	accountinghttp "github.com/odyssey-erp/odyssey-ledger/internal/accounting/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/wtb"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger bundles the wired accounting services shared by the API, worker and
// CLI binaries.
type Ledger struct {
	Accounts     *accounts.Service
	Hierarchy    *accounts.HierarchyAggregator
	Periods      *periods.Service
	Aggregator   *ledger.Aggregator
	Journals     *journals.Service
	Reports      *reports.Service
	BalanceSheet *balancesheet.Service
	WTB          *wtb.Service
	Idempotency  *shared.IdempotencyStore
	Cache        *cache.ReportCache
}

// BuildLedger wires repositories and services against the given pool. The
// redis client may be nil, in which case report caching is disabled.
func BuildLedger(cfg Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	audit := shared.NewAuditLogger(pool)
	approvals := shared.NewApprovalRecorder(pool, logger)

	var reportCache *cache.ReportCache
	if redisClient != nil {
		reportCache = cache.NewReportCache(redisClient, cfg.ReportCacheTTL)
	}

	accountSvc := accounts.NewService(accounts.NewRepository(pool), audit)
	periodSvc := periods.NewService(periods.NewRepository(pool), audit)

	aggregator := ledger.NewAggregator(ledger.NewRepository(pool), accountSvc, periodSvc)
	aggregator.WithChunkSize(cfg.LedgerRecalcChunkSize)
	aggregator.WithLogger(logger)

	journalSvc := journals.NewService(journals.NewRepository(pool), accountSvc, periodSvc, audit)
	journalSvc.WithOrganization(cfg.LedgerOrgID, cfg.LedgerBaseCurrency)
	journalSvc.WithApprovals(approvals)
	journalSvc.WithLogger(logger)
	journalSvc.WithObserver(metrics.Ledger())

	reportSvc := reports.NewService(aggregator, accountSvc)
	reportSvc.WithLogger(logger)
	reportSvc.OnImbalance(func(tb reports.TrialBalance) {
		metrics.Ledger().TrialBalanceChecked(tb.IsBalanced, tb.OutOfBalanceAmount)
	})

	sheetSvc := balancesheet.NewService(aggregator, accountSvc, balancesheet.NewRepository(pool), audit)
	sheetSvc.WithLogger(logger)
	if cfg.BalanceSheetPolicyFile != "" {
		policy, err := balancesheet.LoadPolicyFile(cfg.BalanceSheetPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("app: balance sheet policy: %w", err)
		}
		sheetSvc.WithPolicy(policy)
	}

	wtbSvc := wtb.NewService(wtb.NewRepository(pool), reportSvc, periodSvc, audit)
	wtbSvc.WithOrganization(cfg.LedgerOrgID)
	wtbSvc.WithLogger(logger)

	if reportCache != nil {
		journalSvc.WithCache(reportCache)
		reportSvc.WithCache(reportCache, cfg.LedgerOrgID)
		sheetSvc.WithCache(reportCache, cfg.LedgerOrgID)
		wtbSvc.WithCache(reportCache)
	}

	return &Ledger{
		Accounts:     accountSvc,
		Hierarchy:    accounts.NewHierarchyAggregator(accountSvc, aggregator),
		Periods:      periodSvc,
		Aggregator:   aggregator,
		Journals:     journalSvc,
		Reports:      reportSvc,
		BalanceSheet: sheetSvc,
		WTB:          wtbSvc,
		Idempotency:  shared.NewIdempotencyStore(pool),
		Cache:        reportCache,
	}, nil
}

// HTTPDeps exposes the services through the accounting handler ports.
func (l *Ledger) HTTPDeps() accountinghttp.Deps {
	return accountinghttp.Deps{
		Journals:     l.Journals,
		Ledger:       l.Aggregator,
		Reports:      l.Reports,
		BalanceSheet: l.BalanceSheet,
		WTB:          l.WTB,
		Accounts:     l.Accounts,
		Hierarchy:    l.Hierarchy,
		Periods:      l.Periods,
		Idempotency:  l.Idempotency,
	}
}
