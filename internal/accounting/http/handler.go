package accountinghttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balancesheet"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/wtb"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	reportRateLimit  = 30
	reportRateWindow = time.Minute
)

// JournalService is the journal entry store.
type JournalService interface {
	Get(ctx context.Context, id int64) (journals.JournalEntry, error)
	Query(ctx context.Context, q journals.Query) (journals.QueryResult, error)
	Statistics(ctx context.Context, f journals.StatsFilter) (journals.Statistics, error)
	NextEntryNumber(ctx context.Context, t journals.EntryType, date time.Time) (string, error)
	Create(ctx context.Context, in journals.CreateInput) (journals.JournalEntry, error)
	Update(ctx context.Context, in journals.UpdateInput) (journals.JournalEntry, error)
	Delete(ctx context.Context, id, actorID int64) error
	Post(ctx context.Context, in journals.PostInput) (journals.JournalEntry, ledger.PostResult, error)
	Copy(ctx context.Context, in journals.CopyInput) (journals.JournalEntry, error)
	BulkPost(ctx context.Context, ids []int64, actorID int64, bypassApproval bool) journals.BulkResult
	BulkDelete(ctx context.Context, ids []int64, actorID int64) journals.BulkResult
	Validate(ctx context.Context, id int64) (journals.ValidationResult, error)
	Reverse(ctx context.Context, in journals.ReverseInput) (journals.JournalEntry, error)
	SubmitForApproval(ctx context.Context, id, actorID int64, note string) (journals.JournalEntry, error)
	Approve(ctx context.Context, id, actorID int64, note string) (journals.JournalEntry, error)
}

// LedgerService is the balance aggregator.
type LedgerService interface {
	GetAccountLedger(ctx context.Context, q ledger.LedgerQuery) (ledger.LedgerPage, error)
	GetAccountBalance(ctx context.Context, accountID int64, asOf time.Time) (ledger.PointBalance, error)
	RecalculateBalance(ctx context.Context, accountID, periodID int64) (ledger.AccountBalance, error)
	BatchRecalculateBalances(ctx context.Context, periodID int64, accountIDs []int64) (ledger.BatchResult, error)
}

// ReportService assembles trial balances and income statements.
type ReportService interface {
	Generate(ctx context.Context, opts reports.Options) (reports.TrialBalance, error)
	GenerateComparative(ctx context.Context, opts reports.ComparativeOptions) (reports.ComparativeTrialBalance, error)
	ProfitAndLoss(ctx context.Context, from, to time.Time) (reports.ProfitAndLoss, error)
}

// BalanceSheetService maps balances to the statutory balance sheet.
type BalanceSheetService interface {
	Generate(ctx context.Context, opts balancesheet.GenerateOptions) (balancesheet.Report, error)
	Save(ctx context.Context, in balancesheet.SaveInput) (balancesheet.Snapshot, error)
	Get(ctx context.Context, id int64) (balancesheet.Snapshot, error)
	List(ctx context.Context, f balancesheet.ListFilter) (balancesheet.ListResult, error)
	Delete(ctx context.Context, id, actorID int64) error
}

// WTBService manages working trial balances.
type WTBService interface {
	Create(ctx context.Context, in wtb.CreateInput) (wtb.WorkingTrialBalance, error)
	Get(ctx context.Context, id int64) (wtb.WorkingTrialBalance, error)
	List(ctx context.Context, f wtb.ListFilter) (wtb.ListResult, error)
	Summary(ctx context.Context, id int64) (wtb.Summary, error)
	AddColumn(ctx context.Context, in wtb.ColumnInput) (wtb.Column, error)
	RecordAdjustment(ctx context.Context, in wtb.AdjustmentInput) (wtb.Line, error)
	Lock(ctx context.Context, id, actorID int64) (wtb.LockResult, error)
	Delete(ctx context.Context, id, actorID int64) error
}

// AccountService maintains the chart of accounts.
type AccountService interface {
	Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error)
	Deactivate(ctx context.Context, id, actorID int64) error
}

// HierarchyService rolls balances up the account tree.
type HierarchyService interface {
	GetAggregatedBalance(ctx context.Context, accountID, periodID int64) (accounts.AggregatedBalance, error)
}

// PeriodService manages the fiscal calendar.
type PeriodService interface {
	CreateFiscalYear(ctx context.Context, in periods.CreateFiscalYearInput) (periods.FiscalYear, error)
	Close(ctx context.Context, id, actorID int64) (periods.Period, error)
}

// Idempotency guards journal creation against replayed submissions.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Deps groups the services behind the accounting routes. Nil services leave
// their routes unmounted.
type Deps struct {
	Journals     JournalService
	Ledger       LedgerService
	Reports      ReportService
	BalanceSheet BalanceSheetService
	WTB          WTBService
	Accounts     AccountService
	Hierarchy    HierarchyService
	Periods      PeriodService
	Idempotency  Idempotency
}

// Handler exposes the ledger core over JSON.
type Handler struct {
	logger    *slog.Logger
	deps      Deps
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the accounting handler.
func NewHandler(logger *slog.Logger, deps Deps) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httprate.Limit(reportRateLimit, reportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "RATE_LIMITED", "")
		}),
	)
	return &Handler{logger: logger, deps: deps, validate: validator.New(), rateLimit: limiter}
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := internalShared.ActorFromContext(r.Context()); actor > 0 {
		return "actor:" + strconv.FormatInt(actor, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// MountRoutes registers the accounting routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	if h.deps.Accounts != nil {
		r.Post("/accounts", h.handleCreateAccount)
		r.Post("/accounts/{id}/deactivate", h.handleDeactivateAccount)
	}
	if h.deps.Hierarchy != nil {
		r.Get("/accounts/{id}/aggregate", h.handleAggregate)
	}
	if h.deps.Ledger != nil {
		r.Get("/accounts/{id}/ledger", h.handleAccountLedger)
		r.Get("/accounts/{id}/balance", h.handleAccountBalance)
		r.Post("/balances/recalculate", h.handleRecalculate)
		r.Post("/balances/recalculate-batch", h.handleRecalculateBatch)
	}
	if h.deps.Periods != nil {
		r.Post("/fiscal-years", h.handleCreateFiscalYear)
		r.Post("/periods/{id}/close", h.handleClosePeriod)
	}
	if h.deps.Journals != nil {
		r.Route("/journals", h.mountJournals)
	}
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		if h.deps.Reports != nil {
			r.Get("/reports/trial-balance", h.handleTrialBalance)
			r.Get("/reports/trial-balance/comparative", h.handleComparative)
			r.Get("/reports/profit-loss", h.handleProfitAndLoss)
		}
		if h.deps.BalanceSheet != nil {
			r.Get("/reports/balance-sheet", h.handleBalanceSheet)
			r.Post("/reports/balance-sheet", h.handleSaveBalanceSheet)
			r.Get("/reports/balance-sheet/saved", h.handleListBalanceSheets)
			r.Get("/reports/balance-sheet/{id}", h.handleGetBalanceSheet)
			r.Delete("/reports/balance-sheet/{id}", h.handleDeleteBalanceSheet)
		}
	})
	if h.deps.WTB != nil {
		r.Route("/wtb", h.mountWTB)
	}
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.KindOf(err) == "" {
		h.logger.Error("accounting request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) int64 {
	return internalShared.ActorFromContext(r.Context())
}

func pathID(r *http.Request) (int64, error) {
	return httpx.Int64Param(chi.URLParam(r, "id"), "id")
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := shared.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func requiredDate(r *http.Request, name string) (time.Time, error) {
	d, err := queryDate(r, name)
	if err != nil {
		return time.Time{}, err
	}
	if d == nil {
		return time.Time{}, shared.Wrap(shared.ErrValidation, "%s required", name)
	}
	return *d, nil
}

func queryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func queryList(r *http.Request, name string) []string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDateField(raw, name string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := shared.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return nil, shared.Wrap(shared.ErrValidation, "invalid %s %q", name, raw)
	}
	return &d, nil
}

func parseUUID(raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, shared.Wrap(shared.ErrValidation, "invalid source id %q", raw)
	}
	return &id, nil
}
