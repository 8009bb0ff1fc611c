package accountinghttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balancesheet"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/wtb"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type stubJournals struct {
	JournalService
	created []journals.CreateInput
	createFn func(journals.CreateInput) (journals.JournalEntry, error)
}

func (s *stubJournals) Create(ctx context.Context, in journals.CreateInput) (journals.JournalEntry, error) {
	s.created = append(s.created, in)
	return s.createFn(in)
}

func (s *stubJournals) Get(ctx context.Context, id int64) (journals.JournalEntry, error) {
	return journals.JournalEntry{}, shared.ErrEntryNotFound
}

type stubBalanceSheets struct {
	BalanceSheetService
	deleted []int64
}

func (s *stubBalanceSheets) Delete(ctx context.Context, id, actorID int64) error {
	s.deleted = append(s.deleted, id)
	if id == 7 {
		return shared.ErrReportFinal
	}
	return nil
}

func (s *stubBalanceSheets) Save(ctx context.Context, in balancesheet.SaveInput) (balancesheet.Snapshot, error) {
	if in.MarkAsFinal {
		return balancesheet.Snapshot{}, shared.ErrReportUnbalanced
	}
	return balancesheet.Snapshot{ID: 3, Name: in.Name, ReportDate: in.ReportDate, CreatedBy: in.ActorID}, nil
}

type stubWTB struct {
	WTBService
	locks []int64
}

func (s *stubWTB) Lock(ctx context.Context, id, actorID int64) (wtb.LockResult, error) {
	s.locks = append(s.locks, actorID)
	if id == 2 {
		return wtb.LockResult{}, shared.ErrWTBLocked
	}
	return wtb.LockResult{WTB: wtb.WorkingTrialBalance{ID: id, Status: wtb.StatusLocked}, IsBalanced: true, Difference: decimal.Zero}, nil
}

type memoryIdempotency struct {
	keys    map[string]string
	deleted []string
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m.keys[key]; ok {
		return internalShared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type testEnv struct {
	router      http.Handler
	journals    *stubJournals
	sheets      *stubBalanceSheets
	wtb         *stubWTB
	accounts    ledgertest.Accounts
	idempotency *memoryIdempotency
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	periods := ledgertest.Periods{1: ledgertest.Month(1, 2024, time.January)}
	store := ledgertest.NewStore(periods)
	list := ledgertest.Accounts{}
	list.Add(1, "100", "Kasa", accounts.AccountTypeAsset)
	list.Add(2, "700", "Przychody ze sprzedaży", accounts.AccountTypeRevenue)
	jan := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	store.Append(
		ledger.Record{AccountID: 1, PeriodID: 1, EntryDate: jan, Debit: decimal.NewFromInt(1000), Credit: decimal.Zero},
		ledger.Record{AccountID: 2, PeriodID: 1, EntryDate: jan, Debit: decimal.Zero, Credit: decimal.NewFromInt(1000)},
	)
	agg := ledger.NewAggregator(store, list, periods)

	env := &testEnv{
		journals: &stubJournals{createFn: func(in journals.CreateInput) (journals.JournalEntry, error) {
			return journals.JournalEntry{ID: 11, EntryNumber: "JE-2024-00001", EntryDate: in.EntryDate, Status: journals.StatusDraft}, nil
		}},
		sheets:      &stubBalanceSheets{},
		wtb:         &stubWTB{},
		accounts:    list,
		idempotency: &memoryIdempotency{keys: map[string]string{}},
	}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		Journals:     env.journals,
		Ledger:       agg,
		Reports:      reports.NewService(agg, list),
		BalanceSheet: env.sheets,
		WTB:          env.wtb,
		Accounts:     accounts.NewService(list, nil),
		Idempotency:  env.idempotency,
	})
	r := chi.NewRouter()
	r.Use(internalShared.ActorMiddleware)
	r.Route("/accounting", h.MountRoutes)
	env.router = r
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(internalShared.ActorHeader, "42")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestTrialBalanceEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/accounting/reports/trial-balance?as_of=2024-01-31", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var tb struct {
		IsBalanced bool `json:"isBalanced"`
		Totals     struct {
			Debit  decimal.Decimal `json:"debit"`
			Credit decimal.Decimal `json:"credit"`
		} `json:"totals"`
		Lines []json.RawMessage `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tb))
	require.True(t, tb.IsBalanced)
	require.Len(t, tb.Lines, 2)
	require.True(t, tb.Totals.Debit.Equal(decimal.NewFromInt(1000)))
	require.True(t, tb.Totals.Credit.Equal(decimal.NewFromInt(1000)))
}

func TestTrialBalanceRequiresDate(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/accounting/reports/trial-balance", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "VALIDATION_FAILED", decodeProblem(t, rr).Code)

	rr = env.do(http.MethodGet, "/accounting/reports/trial-balance?as_of=31.01.2024", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAccountLedgerEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/accounting/accounts/1/ledger?from=2024-01-01&to=2024-01-31", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page ledger.LedgerPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Entries, 1)
	require.True(t, page.ClosingBalance.Equal(decimal.NewFromInt(1000)))

	rr = env.do(http.MethodGet, "/accounting/accounts/abc/ledger", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateJournalIdempotency(t *testing.T) {
	env := newTestEnv(t)
	body := `{"entryDate":"2024-01-15","description":"Sprzedaż","lines":[
		{"accountId":1,"debit":"100","credit":"0"},
		{"accountId":2,"debit":"0","credit":"100"}]}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/accounting/journals", strings.NewReader(body))
		req.Header.Set(internalShared.ActorHeader, "42")
		req.Header.Set("Idempotency-Key", "abc-1")
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		return rr
	}

	rr := send()
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, env.journals.created, 1)
	in := env.journals.created[0]
	require.Equal(t, int64(42), in.ActorID)
	require.Equal(t, journals.EntryTypeStandard, in.EntryType)
	require.Len(t, in.Lines, 2)
	require.True(t, in.Lines[0].Debit.Equal(decimal.NewFromInt(100)))

	rr = send()
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "DUPLICATE_REQUEST", decodeProblem(t, rr).Code)
	require.Len(t, env.journals.created, 1)
}

func TestCreateJournalReleasesKeyOnFailure(t *testing.T) {
	env := newTestEnv(t)
	env.journals.createFn = func(journals.CreateInput) (journals.JournalEntry, error) {
		return journals.JournalEntry{}, shared.ErrUnbalanced
	}
	req := httptest.NewRequest(http.MethodPost, "/accounting/journals", strings.NewReader(`{"entryDate":"2024-01-15","lines":[
		{"accountId":1,"debit":"100"},{"accountId":2,"credit":"90"}]}`))
	req.Header.Set("Idempotency-Key", "abc-2")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "UNBALANCED_ENTRY", decodeProblem(t, rr).Code)
	require.Equal(t, []string{"abc-2"}, env.idempotency.deleted)
}

func TestCreateJournalRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/accounting/journals", `{"entryDate":"2024-01-15","lines":[{"accountId":1}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "VALIDATION_FAILED", decodeProblem(t, rr).Code)

	rr = env.do(http.MethodPost, "/accounting/journals", `{"entryDate":"2024-01-15","unknown":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "BAD_REQUEST", decodeProblem(t, rr).Code)
	require.Empty(t, env.journals.created)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/accounting/journals/99", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "ENTRY_NOT_FOUND", decodeProblem(t, rr).Code)

	rr = env.do(http.MethodDelete, "/accounting/reports/balance-sheet/7", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "REPORT_FINAL", decodeProblem(t, rr).Code)

	rr = env.do(http.MethodDelete, "/accounting/reports/balance-sheet/8", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, []int64{7, 8}, env.sheets.deleted)

	rr = env.do(http.MethodPost, "/accounting/reports/balance-sheet", `{"reportDate":"2024-01-31","markAsFinal":true}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(http.MethodPost, "/accounting/wtb/2/lock", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "WTB_LOCKED", decodeProblem(t, rr).Code)
}

func TestSaveBalanceSheetPassesActor(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/accounting/reports/balance-sheet", `{"name":"Bilans roczny","reportDate":"2024-12-31"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var snap balancesheet.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Equal(t, int64(42), snap.CreatedBy)
	require.Equal(t, "Bilans roczny", snap.Name)
	require.Equal(t, "2024-12-31", snap.ReportDate.Format(shared.DateLayout))
}

func TestLockWTBUsesActorHeader(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/accounting/wtb/5/lock", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []int64{42}, env.wtb.locks)
}

func TestDeactivateAccountEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/accounting/accounts/2/deactivate", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.False(t, env.accounts[2].IsActive)
	require.True(t, env.accounts[1].IsActive)

	rr = env.do(http.MethodPost, "/accounting/accounts/99/deactivate", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "ACCOUNT_NOT_FOUND", decodeProblem(t, rr).Code)
}

func TestUnmountedServicesReturnNotFound(t *testing.T) {
	h := NewHandler(nil, Deps{})
	r := chi.NewRouter()
	r.Route("/accounting", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/accounting/reports/trial-balance?as_of=2024-01-31", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReportRateLimit(t *testing.T) {
	env := newTestEnv(t)

	var last int
	for i := 0; i <= reportRateLimit; i++ {
		last = env.do(http.MethodGet, "/accounting/reports/trial-balance?as_of=2024-01-31", "").Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}
