package rtm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	FramesReceived        prometheus.Counter
	FramesDropped         *prometheus.CounterVec
	EventsDispatched      *prometheus.CounterVec
	UnknownKinds          prometheus.Counter
	SubscriberFaults      *prometheus.CounterVec
	DiagnosticsSuppressed prometheus.Counter
	Connections           *prometheus.CounterVec
	State                 prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Total number of data frames read from the connection",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "frames",
			Name:      "dropped_total",
			Help:      "Total number of frames discarded before dispatch",
		}, []string{"reason"}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "events",
			Name:      "dispatched_total",
			Help:      "Total number of events published to subscribers",
		}, []string{"kind"}),
		UnknownKinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "events",
			Name:      "unknown_total",
			Help:      "Total number of events ignored because their kind is not routed",
		}),
		SubscriberFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "subscribers",
			Name:      "faults_total",
			Help:      "Total number of subscriber handlers that failed or panicked",
		}, []string{"topic"}),
		DiagnosticsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "diagnostics",
			Name:      "suppressed_total",
			Help:      "Total number of diagnostic log lines dropped by the rate limiter",
		}),
		Connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "connections",
			Name:      "total",
			Help:      "Connection attempts by outcome (open, failed, cancelled)",
		}, []string{"result"}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtm",
			Name:      "state",
			Help:      "Client state (0=idle, 1=connecting, 2=open, 3=closing, 4=closed, 5=failed)",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesReceived,
			m.FramesDropped,
			m.EventsDispatched,
			m.UnknownKinds,
			m.SubscriberFaults,
			m.DiagnosticsSuppressed,
			m.Connections,
			m.State,
		)
	}
	return m
}
