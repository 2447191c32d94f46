// Package metrics holds the Prometheus counters for export runs.
//
// The process is a batch job, so metrics are not scraped: when
// metrics.textfile is configured the registry is written in the text
// exposition format for the node exporter textfile collector.
//
// Request metrics:
//   - pipedrive_export_requests_total{endpoint, class} (Counter)
//   - pipedrive_export_request_duration_seconds{endpoint} (Histogram)
//   - pipedrive_export_retries_total{class} (Counter)
//   - pipedrive_export_retry_exhausted_total{endpoint} (Counter)
//
// Pipeline metrics:
//   - pipedrive_export_records_fetched_total{category} (Counter)
//   - pipedrive_export_rows_written_total{category} (Counter)
//   - pipedrive_export_categories_total{status} (Counter)
//   - pipedrive_export_last_run_timestamp_seconds (Gauge)
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

// Registry is the registry all export metrics are registered with.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	requestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedrive_export_requests_total",
		Help: "CRM requests by endpoint and outcome class",
	}, []string{"endpoint", "class"})

	requestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipedrive_export_request_duration_seconds",
		Help:    "CRM request duration by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	retriesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedrive_export_retries_total",
		Help: "Retried CRM requests by error class",
	}, []string{"class"})

	retryExhaustedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedrive_export_retry_exhausted_total",
		Help: "CRM requests that used up their retry budget",
	}, []string{"endpoint"})

	recordsFetchedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedrive_export_records_fetched_total",
		Help: "Records fetched per category",
	}, []string{"category"})

	rowsWrittenTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedrive_export_rows_written_total",
		Help: "Rows written to artifacts per category",
	}, []string{"category"})

	categoriesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedrive_export_categories_total",
		Help: "Category exports by final status",
	}, []string{"status"})

	lastRunTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Name: "pipedrive_export_last_run_timestamp_seconds",
		Help: "Unix time the last export run finished",
	})
)

// ObserveRequest records one CRM request. An empty class means success.
func ObserveRequest(endpoint, class string, d time.Duration) {
	if class == "" {
		class = "ok"
	}
	requestsTotal.WithLabelValues(endpoint, class).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveRetry records one retry of a failed request.
func ObserveRetry(class string) {
	retriesTotal.WithLabelValues(class).Inc()
}

// ObserveExhausted records a request that ran out of attempts.
func ObserveExhausted(endpoint string) {
	retryExhaustedTotal.WithLabelValues(endpoint).Inc()
}

// AddFetched adds n fetched records for a category.
func AddFetched(category int64, n int) {
	recordsFetchedTotal.WithLabelValues(strconv.FormatInt(category, 10)).Add(float64(n))
}

// AddWritten adds n written rows for a category.
func AddWritten(category int64, n int) {
	rowsWrittenTotal.WithLabelValues(strconv.FormatInt(category, 10)).Add(float64(n))
}

// ObserveCategory records the final status of one category export.
func ObserveCategory(status string) {
	categoriesTotal.WithLabelValues(status).Inc()
}

// MarkRunFinished stamps the last run gauge.
func MarkRunFinished(t time.Time) {
	lastRunTimestamp.Set(float64(t.Unix()))
}

// WriteTextfile writes the registry to path atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
