package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for fetching and extraction.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	RetriesTotal     prometheus.Counter
	FetchErrorsTotal *prometheus.CounterVec
	FieldsTotal      *prometheus.CounterVec
	CellsTotal       *prometheus.CounterVec
	RowsTotal        prometheus.Counter
	ScrapeDuration   prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wgscrape_requests_total",
			Help: "Total HTTP requests issued to the forecast page.",
		},
		[]string{"phase"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wgscrape_fetch_duration_seconds",
			Help:    "HTTP request latency for page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wgscrape_retries_total",
			Help: "Total number of fetch retry attempts.",
		},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wgscrape_fetch_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	fields := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wgscrape_fields_extracted_total",
			Help: "Page field evaluations by outcome status.",
		},
		[]string{"status"},
	)
	cells := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wgscrape_cells_extracted_total",
			Help: "Forecast cell evaluations by outcome status.",
		},
		[]string{"status"},
	)
	rows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wgscrape_rows_extracted_total",
			Help: "Forecast rows emitted inside the model horizon.",
		},
	)
	scrapeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wgscrape_scrape_duration_seconds",
			Help:    "Wall time of one assemble pass over the document.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(requests, fetchDuration, retries, fetchErrors, fields, cells, rows, scrapeDuration)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		FetchDuration:    fetchDuration,
		RetriesTotal:     retries,
		FetchErrorsTotal: fetchErrors,
		FieldsTotal:      fields,
		CellsTotal:       cells,
		RowsTotal:        rows,
		ScrapeDuration:   scrapeDuration,
	}
}

// IncRequest increments the requests counter for a phase label.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveFetch records one page-fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncFetchError increments the fetch error counter for a type label.
func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncField counts one page-field evaluation by status.
func (m *Metrics) IncField(status string) {
	if m == nil {
		return
	}
	m.FieldsTotal.WithLabelValues(status).Inc()
}

// IncCell counts one forecast-cell evaluation by status.
func (m *Metrics) IncCell(status string) {
	if m == nil {
		return
	}
	m.CellsTotal.WithLabelValues(status).Inc()
}

// IncRows counts one emitted forecast row.
func (m *Metrics) IncRows() {
	if m == nil {
		return
	}
	m.RowsTotal.Inc()
}

// ObserveScrape records the duration of one assemble pass.
func (m *Metrics) ObserveScrape(d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.Observe(d.Seconds())
}
