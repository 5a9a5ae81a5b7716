package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"smart-card-relay-go/internal/model"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Passes           *prometheus.CounterVec
	Fetched          prometheus.Counter
	Processed        prometheus.Counter
	Inserted         prometheus.Counter
	Skipped          prometheus.Counter
	Errors           prometheus.Counter
	RateLimitRetries prometheus.Counter
	StagedFiles      prometheus.Counter
	PassDuration     prometheus.Histogram
	ProcessedIDs     prometheus.Gauge
}

// NewMetrics creates the Prometheus metrics on reg. Tests pass a fresh
// registry; the service passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_card_relay_passes_total",
			Help: "Total number of pipeline passes by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		Fetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_card_relay_fetched_total",
			Help: "Total number of messages returned by the mailbox",
		}),
		Processed: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_card_relay_processed_total",
			Help: "Total number of new messages taken into processing",
		}),
		Inserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_card_relay_inserted_total",
			Help: "Total number of cards created",
		}),
		Skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_card_relay_skipped_total",
			Help: "Total number of messages skipped as already seen or not a project",
		}),
		Errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_card_relay_errors_total",
			Help: "Total number of messages that failed",
		}),
		RateLimitRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_card_relay_rate_limit_retries_total",
			Help: "Total number of delayed retries after rate limiting",
		}),
		StagedFiles: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_card_relay_staged_files_total",
			Help: "Total number of attachments and links downloaded to the staging folder",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_card_relay_pass_duration_seconds",
			Help:    "Time spent in one pipeline pass",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		ProcessedIDs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smart_card_relay_processed_ids",
			Help: "Number of message ids in the dedup store",
		}),
	}
}

// ObservePass records the counters of a finished pass
func (m *Metrics) ObservePass(summary model.RunSummary, outcome string) {
	m.Passes.WithLabelValues(summary.Trigger, outcome).Inc()
	m.Fetched.Add(float64(summary.Fetched))
	m.Processed.Add(float64(summary.Processed))
	m.Inserted.Add(float64(summary.Inserted))
	m.Skipped.Add(float64(summary.Skipped))
	m.Errors.Add(float64(summary.Errors))
	if !summary.FinishedAt.IsZero() {
		m.PassDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}
}
