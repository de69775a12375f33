package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the outbox relay and consumer.
type Metrics struct {
	JobsPublished   prometheus.Counter
	JobsFailed      prometheus.Counter
	JobsConsumed    prometheus.Counter
	ConsumeFailures prometheus.Counter
	RelayBatchSize  prometheus.Histogram
	HandleDuration  prometheus.Histogram
}

// NewMetrics registers all outbox metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		JobsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_outbox_jobs_published_total",
			Help: "Total outbox jobs relayed to Kafka",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_outbox_jobs_failed_total",
			Help: "Total outbox relay failures (job returned to pending or parked)",
		}),
		JobsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_outbox_jobs_consumed_total",
			Help: "Total jobs handled successfully by the consumer",
		}),
		ConsumeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_outbox_consume_failures_total",
			Help: "Total jobs that exhausted consumer retries",
		}),
		RelayBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curator_outbox_relay_batch_size",
			Help:    "Jobs claimed per relay poll",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		HandleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curator_outbox_handle_duration_seconds",
			Help:    "Duration of consumer job handling, provider calls included",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveHandle records the duration of one consumer job handling.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveHandle(start time.Time) {
	m.HandleDuration.Observe(time.Since(start).Seconds())
}
