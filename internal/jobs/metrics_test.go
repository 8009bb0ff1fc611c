package jobmetrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	clock := time.Date(2024, time.March, 31, 2, 15, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Track("ledger:recalc").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:recalc").End(boom), boom)
	skipped := fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	require.ErrorIs(t, m.Track("ledger:recalc").End(skipped), asynq.SkipRetry)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:recalc", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:recalc", StatusFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:recalc", StatusDiscarded)))
	require.Equal(t, float64(clock.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("ledger:recalc")))
}

func TestAddProcessedIgnoresEmptyRuns(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddProcessed("ledger:idempotency_cleanup", 0)
	m.AddProcessed("ledger:idempotency_cleanup", 4)
	require.Equal(t, 4.0, testutil.ToFloat64(m.items.WithLabelValues("ledger:idempotency_cleanup")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:gl_integrity").End(boom), boom)
	m.AddProcessed("ledger:gl_integrity", 3)
}
