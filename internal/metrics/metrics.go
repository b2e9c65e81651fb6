// Package metrics provides Prometheus instrumentation for scans and deletions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors drivepurge records. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pagesFetched  prometheus.Counter
	filesScanned  prometheus.Counter
	scansTotal    *prometheus.CounterVec
	trashRequests *prometheus.CounterVec
	trashWaves    prometheus.Counter
	authTotal     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		pagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivepurge_scan_pages_fetched_total",
			Help: "Listing pages fetched from the provider",
		}),
		filesScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivepurge_scan_files_total",
			Help: "File records retrieved by completed scans",
		}),
		scansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drivepurge_scans_total",
			Help: "Scans by source and outcome",
		}, []string{"source", "outcome"}),
		trashRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drivepurge_trash_requests_total",
			Help: "Trash requests by outcome",
		}, []string{"outcome"}),
		trashWaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivepurge_trash_waves_total",
			Help: "Concurrent trash batches issued",
		}),
		authTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drivepurge_auth_total",
			Help: "Credential changes by method and outcome",
		}, []string{"method", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PageFetched() {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
}

func (m *Metrics) ScanFinished(source string, files int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		m.filesScanned.Add(float64(files))
	}
	m.scansTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) TrashWave() {
	if m == nil {
		return
	}
	m.trashWaves.Inc()
}

func (m *Metrics) TrashResult(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.trashRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Auth(method string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.authTotal.WithLabelValues(method, outcome).Inc()
}
