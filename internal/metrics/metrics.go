package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unclebandit/smsleopard-intake/internal/model"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// BatchesRecorded counts committed batches per submit surface.
	BatchesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_batches_total",
			Help: "Number of committed ingestion batches",
		},
		[]string{"source"},
	)

	// ContactOutcomes counts contacts by result: processed, failed or duplicate.
	ContactOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_contact_outcomes_total",
			Help: "Contacts evaluated by ingestion batches, by result",
		},
		[]string{"source", "result"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCount, RequestDuration, BatchesRecorded, ContactOutcomes)
	})
}

func ObserveBatch(evt model.BatchRecorded) {
	source := string(evt.Source)
	BatchesRecorded.WithLabelValues(source).Inc()
	ContactOutcomes.WithLabelValues(source, "processed").Add(float64(evt.Processed))
	ContactOutcomes.WithLabelValues(source, "failed").Add(float64(evt.Failed))
	ContactOutcomes.WithLabelValues(source, "duplicate").Add(float64(evt.SkippedDuplicates))
}
