package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// LedgerMetrics counts posting outcomes and trial balance integrity failures.
// A nil receiver is a no-op so services can run without metrics.
type LedgerMetrics struct {
	posted      *prometheus.CounterVec
	linesPosted prometheus.Counter
	failures    *prometheus.CounterVec
	imbalances  prometheus.Counter
	difference  prometheus.Gauge
}

func newLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_entries_posted_total",
		Help: "Journal entries posted to the ledger by entry type.",
	}, []string{"entry_type"})
	lines := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_ledger_lines_posted_total",
		Help: "Ledger records created by posting.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_posting_failures_total",
		Help: "Rejected postings by error code.",
	}, []string{"code"})
	imbalances := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_ledger_out_of_balance_total",
		Help: "Trial balances found with debits not equal to credits.",
	})
	difference := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_ledger_out_of_balance_amount",
		Help: "Absolute debit/credit difference of the last assembled trial balance.",
	})
	registerer.MustRegister(posted, lines, failures, imbalances, difference)
	return &LedgerMetrics{posted: posted, linesPosted: lines, failures: failures, imbalances: imbalances, difference: difference}
}

// EntryPosted records a successful posting.
func (m *LedgerMetrics) EntryPosted(entryType string, lines int) {
	if m == nil {
		return
	}
	m.posted.WithLabelValues(entryType).Inc()
	m.linesPosted.Add(float64(lines))
}

// PostingFailed records a rejected posting by its stable error code.
func (m *LedgerMetrics) PostingFailed(code string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(code).Inc()
}

// TrialBalanceChecked updates the integrity gauge and counts imbalances.
func (m *LedgerMetrics) TrialBalanceChecked(balanced bool, difference decimal.Decimal) {
	if m == nil {
		return
	}
	f, _ := difference.Abs().Float64()
	m.difference.Set(f)
	if !balanced {
		m.imbalances.Inc()
	}
}
