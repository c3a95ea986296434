package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus registry and every collector the service
// exports. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	StoreWrites     *prometheus.CounterVec
	StoreRestores   prometheus.Counter
	Backups         *prometheus.CounterVec
	FeedRequests    *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StoreWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_store_writes_total",
				Help: "Document writes by result",
			},
			[]string{"result"},
		),
		StoreRestores: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_store_restores_total",
				Help: "Canonical file restorations from backup after a failed write",
			},
		),
		Backups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_backups_total",
				Help: "Backup attempts by result",
			},
			[]string{"result"},
		),
		FeedRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_feed_requests_total",
				Help: "Media feed requests by source (cache, upstream, stale, error)",
			},
			[]string{"source"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.StoreWrites,
		m.StoreRestores,
		m.Backups,
		m.FeedRequests,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStoreWrite counts a document write
func (m *Metrics) ObserveStoreWrite(err error) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(result(err)).Inc()
}

// ObserveRestore counts a restoration from backup
func (m *Metrics) ObserveRestore() {
	if m == nil {
		return
	}
	m.StoreRestores.Inc()
}

// ObserveBackup counts a backup attempt
func (m *Metrics) ObserveBackup(err error) {
	if m == nil {
		return
	}
	m.Backups.WithLabelValues(result(err)).Inc()
}

// ObserveFeed counts a feed request served from the given source
func (m *Metrics) ObserveFeed(source string) {
	if m == nil {
		return
	}
	m.FeedRequests.WithLabelValues(source).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
