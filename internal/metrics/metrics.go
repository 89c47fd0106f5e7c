// Package metrics exports Prometheus counters for the events dispatcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"usercal/internal/store"
	"usercal/internal/userevents"
)

type label struct {
	op      userevents.Op
	outcome string
}

var kindLabels = map[userevents.Kind]label{
	userevents.KindLoadRequested:   {userevents.OpLoad, "requested"},
	userevents.KindLoadSucceeded:   {userevents.OpLoad, "succeeded"},
	userevents.KindLoadFailed:      {userevents.OpLoad, "failed"},
	userevents.KindCreateRequested: {userevents.OpCreate, "requested"},
	userevents.KindCreateSucceeded: {userevents.OpCreate, "succeeded"},
	userevents.KindCreateFailed:    {userevents.OpCreate, "failed"},
	userevents.KindDeleteRequested: {userevents.OpDelete, "requested"},
	userevents.KindDeleteSucceeded: {userevents.OpDelete, "succeeded"},
	userevents.KindDeleteFailed:    {userevents.OpDelete, "failed"},
}

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry      *prometheus.Registry
	notifications *prometheus.CounterVec
	events        prometheus.Gauge
	pending       *prometheus.GaugeVec
}

// New registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usercal",
			Name:      "notifications_total",
			Help:      "Dispatcher notifications by operation and outcome.",
		}, []string{"op", "outcome"}),
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "usercal",
			Name:      "events",
			Help:      "Events currently held in the store.",
		}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "usercal",
			Name:      "pending_operations",
			Help:      "Remote operations in flight.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.notifications, m.events, m.pending)
	return m
}

// Wrap counts every notification before passing it on to emit.
func (m *Metrics) Wrap(emit userevents.Emit) userevents.Emit {
	return func(n userevents.Notification) {
		if l, ok := kindLabels[n.Kind()]; ok {
			m.notifications.WithLabelValues(string(l.op), l.outcome).Inc()
		}
		emit(n)
	}
}

// Observe updates the gauges from a store snapshot; use it as a store
// subscriber.
func (m *Metrics) Observe(root store.Root) {
	m.events.Set(float64(userevents.Len(root.Events)))
	m.pending.WithLabelValues(string(userevents.OpLoad)).Set(float64(root.Status.Load.Pending))
	m.pending.WithLabelValues(string(userevents.OpCreate)).Set(float64(root.Status.Create.Pending))
	m.pending.WithLabelValues(string(userevents.OpDelete)).Set(float64(root.Status.Delete.Pending))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
