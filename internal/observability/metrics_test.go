package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/accounting/journals/{id}")

	req := httptest.NewRequest(http.MethodGet, "/accounting/journals/9", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_http_requests_total{code="418",route="/accounting/journals/{id}"} 1`)
	require.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/accounting/journals/{id}"`)
	require.Contains(t, body, "odyssey_http_requests_in_flight 0")
	require.Contains(t, body, "go_goroutines")
}

func TestLedgerCounters(t *testing.T) {
	metrics := NewMetrics()
	ledger := metrics.Ledger()

	ledger.EntryPosted("STANDARD", 2)
	ledger.EntryPosted("STANDARD", 3)
	ledger.EntryPosted("REVERSAL", 2)
	ledger.PostingFailed("PERIOD_CLOSED")
	ledger.TrialBalanceChecked(true, decimal.Zero)
	ledger.TrialBalanceChecked(false, decimal.RequireFromString("-12.50"))

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_ledger_entries_posted_total{entry_type="STANDARD"} 2`)
	require.Contains(t, body, `odyssey_ledger_entries_posted_total{entry_type="REVERSAL"} 1`)
	require.Contains(t, body, "odyssey_ledger_lines_posted_total 7")
	require.Contains(t, body, `odyssey_ledger_posting_failures_total{code="PERIOD_CLOSED"} 1`)
	require.Contains(t, body, "odyssey_ledger_out_of_balance_total 1")
	require.Contains(t, body, "odyssey_ledger_out_of_balance_amount 12.5")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	require.Nil(t, metrics.Ledger())
	metrics.Ledger().EntryPosted("STANDARD", 2)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.False(t, strings.Contains(rr.Body.String(), "odyssey_"))
}
