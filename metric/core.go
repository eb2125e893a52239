package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all core synchronization metrics (not renderer-specific)
type Metrics struct {
	// Dispatcher metrics
	DispatcherState    *prometheus.GaugeVec
	EventsReceived     *prometheus.CounterVec
	EventsDispatched   *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	ReconnectAttempts  prometheus.Counter
	ConnectionsTotal   prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec

	// Registry and display metrics
	InstancesActive  prometheus.Gauge
	RendersTotal     *prometheus.CounterVec
	UpdatesTotal     *prometheus.CounterVec
	DestroysTotal    *prometheus.CounterVec
	LayerOccupied    *prometheus.GaugeVec
	BlockersTotal    prometheus.Counter
	ViewsComposed    *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		DispatcherState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chameleon",
				Subsystem: "dispatcher",
				Name:      "state",
				Help:      "Dispatcher state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=failed)",
			},
			[]string{"session"},
		),

		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of raw messages received",
			},
			[]string{"session"},
		),

		EventsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "events",
				Name:      "dispatched_total",
				Help:      "Total number of events fanned out to handlers",
			},
			[]string{"session", "kind"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of malformed messages dropped",
			},
			[]string{"session", "reason"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chameleon",
				Subsystem: "events",
				Name:      "dispatch_duration_seconds",
				Help:      "Event fan-out duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"session", "kind"},
		),

		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "dispatcher",
				Name:      "reconnect_attempts_total",
				Help:      "Total number of reconnection attempts",
			},
		),

		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "dispatcher",
				Name:      "connections_total",
				Help:      "Total number of successful transport connections",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by class",
			},
			[]string{"session", "class"},
		),

		InstancesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "chameleon",
				Subsystem: "registry",
				Name:      "instances_active",
				Help:      "Number of live component instances",
			},
		),

		RendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "registry",
				Name:      "renders_total",
				Help:      "Total render invocations by component kind and status",
			},
			[]string{"kind", "status"},
		),

		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "registry",
				Name:      "updates_total",
				Help:      "Total update invocations by status",
			},
			[]string{"status"},
		),

		DestroysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "registry",
				Name:      "destroys_total",
				Help:      "Total destroy invocations by status",
			},
			[]string{"status"},
		),

		LayerOccupied: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chameleon",
				Subsystem: "display",
				Name:      "layer_occupied",
				Help:      "Layer occupancy (0=empty, 1=showing)",
			},
			[]string{"layer"},
		),

		BlockersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "display",
				Name:      "blockers_total",
				Help:      "Total blocker events routed to the interrupt layer",
			},
		),

		ViewsComposed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chameleon",
				Subsystem: "compositor",
				Name:      "views_composed_total",
				Help:      "Total composed views by layout type",
			},
			[]string{"layout"},
		),
	}
}

// RecordDispatcherState updates the dispatcher state metric
func (c *Metrics) RecordDispatcherState(session string, state int) {
	c.DispatcherState.WithLabelValues(session).Set(float64(state))
}

// RecordEventReceived increments the raw message counter
func (c *Metrics) RecordEventReceived(session string) {
	c.EventsReceived.WithLabelValues(session).Inc()
}

// RecordEventDispatched increments the dispatched event counter
func (c *Metrics) RecordEventDispatched(session, kind string) {
	c.EventsDispatched.WithLabelValues(session, kind).Inc()
}

// RecordEventDropped increments the dropped message counter
func (c *Metrics) RecordEventDropped(session, reason string) {
	c.EventsDropped.WithLabelValues(session, reason).Inc()
}

// RecordDispatchDuration records the fan-out time for one event
func (c *Metrics) RecordDispatchDuration(session, kind string, duration time.Duration) {
	c.DispatchDuration.WithLabelValues(session, kind).Observe(duration.Seconds())
}

// RecordReconnectAttempt increments the reconnection counter
func (c *Metrics) RecordReconnectAttempt() {
	c.ReconnectAttempts.Inc()
}

// RecordConnection increments the successful connection counter
func (c *Metrics) RecordConnection() {
	c.ConnectionsTotal.Inc()
}

// RecordError increments the error counter by class
func (c *Metrics) RecordError(session, class string) {
	c.ErrorsTotal.WithLabelValues(session, class).Inc()
}

// RecordLayerOccupied updates layer occupancy
func (c *Metrics) RecordLayerOccupied(layer string, occupied bool) {
	value := 0.0
	if occupied {
		value = 1.0
	}
	c.LayerOccupied.WithLabelValues(layer).Set(value)
}
