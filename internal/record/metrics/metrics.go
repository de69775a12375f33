package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the record lifecycle module.
type Metrics struct {
	RecordsPublished  prometheus.Counter
	RecordsDeleted    prometheus.Counter
	RecordsRestored   prometheus.Counter
	RecordsMarked     prometheus.Counter
	RecordsUnmarked   prometheus.Counter
	RecordsPurged     prometheus.Counter
	EmbargoesLifted   prometheus.Counter
	DeletionRequests  prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all lifecycle metrics registered.
func New() *Metrics {
	return &Metrics{
		RecordsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_records_published_total",
			Help: "Total record versions published",
		}),
		RecordsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_records_deleted_total",
			Help: "Total records soft-deleted",
		}),
		RecordsRestored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_records_restored_total",
			Help: "Total deleted records restored to published",
		}),
		RecordsMarked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_records_marked_total",
			Help: "Total records marked for purge",
		}),
		RecordsUnmarked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_records_unmarked_total",
			Help: "Total records unmarked back to deleted",
		}),
		RecordsPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_records_purged_total",
			Help: "Total records destructively purged",
		}),
		EmbargoesLifted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_embargoes_lifted_total",
			Help: "Total expired embargoes lifted",
		}),
		DeletionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_deletion_requests_total",
			Help: "Total deletion requests filed for review",
		}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curator_lifecycle_operation_duration_seconds",
			Help:    "Duration of lifecycle operations, transaction included",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// ObserveOperation records the duration of one lifecycle operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
