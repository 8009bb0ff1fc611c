package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded on odyssey_jobs_total.
const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusDiscarded = "discarded"
)

// Metrics exposes Prometheus collectors for ledger background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts a tracker for the named task type.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{metrics: m, job: job}
	if m != nil {
		t.start = m.now()
	}
	return t
}

// End records the run outcome and returns err untouched. Errors wrapping
// asynq.SkipRetry count as discarded since the task will not be retried.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	now := m.now()
	m.runs.WithLabelValues(t.job, outcome(err)).Inc()
	m.duration.WithLabelValues(t.job).Observe(now.Sub(t.start).Seconds())
	if err == nil {
		m.lastSuccess.WithLabelValues(t.job).Set(float64(now.Unix()))
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusDiscarded
	default:
		return StatusFailure
	}
}

// AddProcessed counts units of work (accounts recalculated, keys pruned)
// completed by a job run.
func (m *Metrics) AddProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.items.WithLabelValues(job).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Job executions by task type and outcome.",
	}, []string{"job", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_job_items_processed_total",
		Help: "Units of work completed by background jobs.",
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per task type.",
	}, []string{"job"})
	registerer.MustRegister(runs, duration, items, lastSuccess)
	return &Metrics{runs: runs, duration: duration, items: items, lastSuccess: lastSuccess, now: time.Now}
}
