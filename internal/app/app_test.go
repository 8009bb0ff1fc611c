package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_ORG_ID", "7")
	t.Setenv("REPORT_CACHE_TTL", "90s")
	t.Setenv("MIGRATE_ON_START", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, int64(7), cfg.LedgerOrgID)
	require.Equal(t, "PLN", cfg.LedgerBaseCurrency)
	require.Equal(t, 100, cfg.LedgerRecalcChunkSize)
	require.Equal(t, 90*time.Second, cfg.ReportCacheTTL)
	require.True(t, cfg.MigrateOnStart)
	require.Empty(t, cfg.BalanceSheetPolicyFile)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidLedgerSettings(t *testing.T) {
	t.Setenv("LEDGER_ORG_ID", "1")
	t.Setenv("LEDGER_BASE_CURRENCY", "ZLOTY")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("LEDGER_BASE_CURRENCY", "EUR")
	t.Setenv("LEDGER_RECALC_CHUNK_SIZE", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{AppEnv: "test", AppRequestTimeout: time.Second, AppRateLimit: 100},
		Metrics: metrics,
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `odyssey_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouterRateLimitsByIP(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: &Config{AppRateLimit: 2},
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv("ODYSSEY_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("ODYSSEY_TEST_MODE", "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.Int64("period_id", 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "shown", rec["msg"])
	require.Equal(t, "odyssey-ledger", rec["service"])
	require.EqualValues(t, 3, rec["period_id"])
}

func TestBuildLedgerWiresServices(t *testing.T) {
	pool, err := pgxpool.New(context.Background(), "postgres://ledger@127.0.0.1:1/ledger?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	cfg := Config{LedgerOrgID: 1, LedgerBaseCurrency: "PLN", LedgerRecalcChunkSize: 50}

	svc, err := BuildLedger(cfg, pool, nil, observability.NewMetrics(), nil)
	require.NoError(t, err)
	require.Nil(t, svc.Cache)
	deps := svc.HTTPDeps()
	require.NotNil(t, deps.Journals)
	require.NotNil(t, deps.Hierarchy)
	require.NotNil(t, deps.Idempotency)

	cfg.BalanceSheetPolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = BuildLedger(cfg, pool, nil, nil, nil)
	require.Error(t, err)
}
