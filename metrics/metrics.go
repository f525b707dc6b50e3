// Package metrics implements core.Metrics with Prometheus counters,
// grounded on Jeeves-Cluster-Organization-jeeves-core's
// coreengine/observability package — the same promauto.NewCounterVec
// label-vector shape, scaled down to the four events core.State
// reports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wlproxy_messages_total",
			Help: "Total wire messages processed, by direction and outcome",
		},
		[]string{"direction", "outcome"}, // direction: "request" (client to server) or "event" (server to client), as core.State reports it; outcome: forwarded, dropped
	)

	objectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wlproxy_objects_total",
			Help: "Total protocol objects created/destroyed, by interface and event",
		},
		[]string{"interface", "event"}, // event: created, destroyed
	)
)

// Sink implements core.Metrics. The zero value is ready to use —
// promauto registers its vectors against the default registry once,
// at package init, not per-Sink.
type Sink struct{}

func New() *Sink { return &Sink{} }

func (Sink) MessageForwarded(direction string) {
	messagesTotal.WithLabelValues(direction, "forwarded").Inc()
}

func (Sink) MessageDropped(direction string) {
	messagesTotal.WithLabelValues(direction, "dropped").Inc()
}

func (Sink) ObjectCreated(iface string) {
	objectsTotal.WithLabelValues(iface, "created").Inc()
}

func (Sink) ObjectDestroyed(iface string) {
	objectsTotal.WithLabelValues(iface, "destroyed").Inc()
}
