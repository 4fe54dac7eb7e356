// Package metrics provides Prometheus metrics for the iotcon daemon.
//
// Every recording method is safe on a nil *Collector, so components take
// an optional collector and record unconditionally.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "iotcon"

// Collector holds all Prometheus metrics for the daemon.
type Collector struct {
	// Registry metrics
	ResourcesRegistered prometheus.Gauge
	RegistryErrors      *prometheus.CounterVec

	// Dispatcher metrics
	TicketsIssued   *prometheus.CounterVec
	TicketsInFlight prometheus.Gauge
	Completions     *prometheus.CounterVec
	InboundRequests *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	SignalsEmitted  *prometheus.CounterVec
	TransportErrors *prometheus.CounterVec

	// IPC metrics
	IPCCalls        *prometheus.CounterVec
	IPCCallDuration *prometheus.HistogramVec
	IPCConnections  prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ResourcesRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_registered",
				Help:      "Number of resources currently registered",
			},
		),
		RegistryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_errors_total",
				Help:      "Registry operations that failed, by operation",
			},
			[]string{"op"},
		),

		TicketsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tickets_issued_total",
				Help:      "Tickets issued for outbound operations, by kind",
			},
			[]string{"kind"},
		),
		TicketsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tickets_in_flight",
				Help:      "Tickets awaiting completion",
			},
		),
		Completions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completions_total",
				Help:      "Completions delivered by the stack, by kind and result",
			},
			[]string{"kind", "result"},
		),
		InboundRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_requests_total",
				Help:      "Requests received for local resources, by method",
			},
			[]string{"method"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notify calls, by mode and whether any observer was present",
			},
			[]string{"mode", "observers"},
		),
		SignalsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_emitted_total",
				Help:      "Signals emitted to clients, by prefix",
			},
			[]string{"prefix"},
		),
		TransportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_errors_total",
				Help:      "Synchronous stack call failures, by operation",
			},
			[]string{"op"},
		),

		IPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_calls_total",
				Help:      "IPC calls served, by method and result code",
			},
			[]string{"method", "code"},
		),
		IPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ipc_call_duration_seconds",
				Help:      "IPC call handling time in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"method"},
		),
		IPCConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ipc_connections",
				Help:      "Connected IPC clients",
			},
		),
	}
}

func (c *Collector) ResourceAdded() {
	if c != nil {
		c.ResourcesRegistered.Inc()
	}
}

func (c *Collector) ResourceRemoved() {
	if c != nil {
		c.ResourcesRegistered.Dec()
	}
}

func (c *Collector) RegistryError(op string) {
	if c != nil {
		c.RegistryErrors.WithLabelValues(op).Inc()
	}
}

// TicketIssued counts a new ticket of kind.
func (c *Collector) TicketIssued(kind string) {
	if c != nil {
		c.TicketsIssued.WithLabelValues(kind).Inc()
		c.TicketsInFlight.Inc()
	}
}

// TicketClosed records a ticket leaving the table.
func (c *Collector) TicketClosed() {
	if c != nil {
		c.TicketsInFlight.Dec()
	}
}

func (c *Collector) Completion(kind, result string) {
	if c != nil {
		c.Completions.WithLabelValues(kind, result).Inc()
	}
}

func (c *Collector) InboundRequest(method string) {
	if c != nil {
		c.InboundRequests.WithLabelValues(method).Inc()
	}
}

func (c *Collector) Notification(mode string, observers bool) {
	if c != nil {
		c.Notifications.WithLabelValues(mode, strconv.FormatBool(observers)).Inc()
	}
}

func (c *Collector) SignalEmitted(prefix string) {
	if c != nil {
		c.SignalsEmitted.WithLabelValues(prefix).Inc()
	}
}

func (c *Collector) TransportError(op string) {
	if c != nil {
		c.TransportErrors.WithLabelValues(op).Inc()
	}
}

// IPCCall records one served call.
func (c *Collector) IPCCall(method string, code int, elapsed time.Duration) {
	if c != nil {
		c.IPCCalls.WithLabelValues(method, strconv.Itoa(code)).Inc()
		c.IPCCallDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

func (c *Collector) ConnectionOpened() {
	if c != nil {
		c.IPCConnections.Inc()
	}
}

func (c *Collector) ConnectionClosed() {
	if c != nil {
		c.IPCConnections.Dec()
	}
}
