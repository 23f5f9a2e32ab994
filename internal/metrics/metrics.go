// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	harvestItemsTotal          *prometheus.CounterVec
	harvestDocumentsTotal      *prometheus.CounterVec
	harvestBytesTotal          *prometheus.CounterVec
	harvestPagesTotal          prometheus.Counter
	harvestContactsTotal       *prometheus.CounterVec
	harvestOutreachTotal       *prometheus.CounterVec
	harvestActiveWorkers       prometheus.Gauge
	harvestRateLimitDelaysSecs *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		harvestItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidharvest_items_total",
				Help: "Listing items handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvestDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidharvest_documents_total",
				Help: "Documents downloaded, labeled by kind (main or linked) and status.",
			},
			[]string{"kind", "status"},
		)

		harvestBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidharvest_bytes_total",
				Help: "Bytes downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		harvestPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bidharvest_pages_total",
				Help: "Listing pages visited.",
			},
		)

		harvestContactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidharvest_contacts_total",
				Help: "Contact records touched, labeled by change (created or corrected).",
			},
			[]string{"change"},
		)

		harvestOutreachTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidharvest_outreach_batches_total",
				Help: "Outreach batches, labeled by status.",
			},
			[]string{"status"},
		)

		harvestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bidharvest_active_workers",
				Help: "Number of workers currently processing an item.",
			},
		)

		harvestRateLimitDelaysSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bidharvest_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidharvest_http_requests_total",
				Help: "Requests served by the metrics endpoint, labeled by route.",
			},
			[]string{"route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveItem counts an item outcome (processed, duplicate, skipped, failed).
func ObserveItem(outcome string) {
	Init()
	harvestItemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDocument counts a document download.
func ObserveDocument(kind, status, site string, size int64) {
	Init()
	harvestDocumentsTotal.WithLabelValues(kind, status).Inc()
	if size > 0 {
		harvestBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(size))
	}
}

// ObservePage counts a visited listing page.
func ObservePage() {
	Init()
	harvestPagesTotal.Inc()
}

// ObserveContacts counts created and corrected contact records.
func ObserveContacts(created, corrected int) {
	Init()
	if created > 0 {
		harvestContactsTotal.WithLabelValues("created").Add(float64(created))
	}
	if corrected > 0 {
		harvestContactsTotal.WithLabelValues("corrected").Add(float64(corrected))
	}
}

// ObserveOutreach counts an outreach batch by status.
func ObserveOutreach(status string) {
	Init()
	harvestOutreachTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	harvestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	harvestActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	harvestRateLimitDelaysSecs.WithLabelValues(domain).Observe(duration.Seconds())
}
