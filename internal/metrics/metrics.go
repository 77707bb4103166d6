package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the scraper collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ScrapesTotal     *prometheus.CounterVec
	ScrapeDuration   *prometheus.HistogramVec
	FetchAttempts    *prometheus.CounterVec
	RateLimitWait    *prometheus.HistogramVec
	BatchesInFlight  prometheus.Gauge
	ExportsTotal     *prometheus.CounterVec
	ExportedProducts *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ScrapesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_scrapes_total",
				Help: "Total number of product scrapes.",
			},
			[]string{"vendor", "status", "error_type"},
		),
		ScrapeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vendor_scrape_duration_seconds",
				Help:    "Duration of product scrapes including retries.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120},
			},
			[]string{"vendor"},
		),
		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_fetch_attempts_total",
				Help: "Total number of page fetch attempts.",
			},
			[]string{"vendor", "result"}, // result: ok, transient, permanent
		),
		RateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vendor_rate_limit_wait_seconds",
				Help:    "Time spent waiting for a vendor request slot.",
				Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"vendor"},
		),
		BatchesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vendor_batches_in_flight",
				Help: "Current number of running scrape batches.",
			},
		),
		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_exports_total",
				Help: "Total number of export calls.",
			},
			[]string{"format", "status"},
		),
		ExportedProducts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_exported_products_total",
				Help: "Total number of products written by exports.",
			},
			[]string{"format"},
		),
	}
}

func (m *Metrics) ObserveScrape(vendor, status, errorType string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapesTotal.WithLabelValues(vendor, status, errorType).Inc()
	m.ScrapeDuration.WithLabelValues(vendor).Observe(d.Seconds())
}

func (m *Metrics) ObserveFetchAttempt(vendor, result string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(vendor, result).Inc()
}

func (m *Metrics) ObserveRateLimitWait(vendor string, d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.WithLabelValues(vendor).Observe(d.Seconds())
}

func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.BatchesInFlight.Inc()
}

func (m *Metrics) BatchFinished() {
	if m == nil {
		return
	}
	m.BatchesInFlight.Dec()
}

func (m *Metrics) ObserveExport(format, status string, products int) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format, status).Inc()
	if status == "success" {
		m.ExportedProducts.WithLabelValues(format).Add(float64(products))
	}
}
