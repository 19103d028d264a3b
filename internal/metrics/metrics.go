// Package metrics exposes Prometheus counters for the event pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters.
type Metrics struct {
	registry *prometheus.Registry

	Events        *prometheus.CounterVec
	Filtered      prometheus.Counter
	StoreErrors   prometheus.Counter
	MediaArchives *prometheus.CounterVec
}

// New creates a Metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlog_events_total",
			Help: "Observed events by kind.",
		}, []string{"kind"}),
		Filtered: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_events_filtered_total",
			Help: "Events dropped by the chat filter before any side effect.",
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_store_errors_total",
			Help: "History store I/O failures.",
		}),
		MediaArchives: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlog_media_archives_total",
			Help: "Media archival attempts by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
