package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for activity-log recording and search.
type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	EventsDeleted   prometheus.Counter
	SearchDuration  prometheus.Histogram
	StoreFailures   *prometheus.CounterVec
	PublishFailures prometheus.Counter
	IngestRejected  *prometheus.CounterVec
}

// New registers activity-log metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogue_activitylog_events_recorded_total",
			Help: "Total number of activity log entries recorded, by event type",
		}, []string{"event_type"}),
		EventsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalogue_activitylog_events_deleted_total",
			Help: "Total number of manual activity log entries deleted",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalogue_activitylog_search_duration_ms",
			Help:    "Latency of activity log searches in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		StoreFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogue_activitylog_store_failures_total",
			Help: "Total number of event store failures, by operation",
		}, []string{"operation"}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalogue_activitylog_publish_failures_total",
			Help: "Total number of recorded-event notifications that failed to publish",
		}),
		IngestRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogue_activitylog_ingest_rejected_total",
			Help: "Total number of ingest messages committed without recording, by reason",
		}, []string{"reason"}),
	}
}

// IncEventsRecorded increments the recorded counter for eventType.
func (m *Metrics) IncEventsRecorded(eventType string) {
	m.EventsRecorded.WithLabelValues(eventType).Inc()
}

// IncStoreFailure increments the store failure counter for operation.
func (m *Metrics) IncStoreFailure(operation string) {
	m.StoreFailures.WithLabelValues(operation).Inc()
}

// IncIngestRejected increments the ingest rejection counter for reason.
func (m *Metrics) IncIngestRejected(reason string) {
	m.IngestRejected.WithLabelValues(reason).Inc()
}

// ObserveSearch records how long a search took.
func (m *Metrics) ObserveSearch(d time.Duration) {
	m.SearchDuration.Observe(float64(d.Microseconds()) / 1000.0)
}
