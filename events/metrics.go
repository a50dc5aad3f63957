package events

import "github.com/prometheus/client_golang/prometheus"

var (
	// EmittedTotal counts emitted events by kind.
	EmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridstore",
		Subsystem: "events",
		Name:      "emitted_total",
		Help:      "Total number of storage events emitted",
	}, []string{"kind"})

	// DeliveredTotal counts listener invocations by kind.
	DeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridstore",
		Subsystem: "events",
		Name:      "delivered_total",
		Help:      "Total number of events handed to listeners",
	}, []string{"kind"})

	// ListenerPanicsTotal counts recovered listener panics by kind.
	ListenerPanicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridstore",
		Subsystem: "events",
		Name:      "listener_panics_total",
		Help:      "Total number of panics recovered from event listeners",
	}, []string{"kind"})

	// Listeners tracks active subscriptions by kind.
	Listeners = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gridstore",
		Subsystem: "events",
		Name:      "listeners",
		Help:      "Current number of active event subscriptions",
	}, []string{"kind"})
)

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		EmittedTotal,
		DeliveredTotal,
		ListenerPanicsTotal,
		Listeners,
	}
}
