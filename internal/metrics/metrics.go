// Package metrics holds the Prometheus collectors for scans, findings and
// the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the Prometheus metrics for cdoc.
type Metrics struct {
	ScansTotal         *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
	FindingsTotal      *prometheus.CounterVec
	RuleFaultsTotal    *prometheus.CounterVec
	ReportsStored      prometheus.Counter
	EventPublishErrors prometheus.Counter
	HTTPRequestsTotal  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry, so separate instances
// never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return newWith(reg, reg)
}

func newWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdoc_scans_total",
			Help: "Total number of scans by final status",
		}, []string{"status"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdoc_scan_duration_seconds",
			Help:    "Wall time of a scan from collection to storage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		FindingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdoc_findings_total",
			Help: "Total number of findings produced by status",
		}, []string{"status"}),
		RuleFaultsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdoc_rule_faults_total",
			Help: "Total number of ERROR findings by rule",
		}, []string{"rule_id"}),
		ReportsStored: f.NewCounter(prometheus.CounterOpts{
			Name: "cdoc_reports_stored_total",
			Help: "Total number of reports persisted",
		}),
		EventPublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "cdoc_event_publish_errors_total",
			Help: "Total number of report event publish errors",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdoc_http_requests_total",
			Help: "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
		gatherer: g,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
