package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotcon/iotcon-go/pkg/metrics"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.ResourceAdded()
		c.ResourceRemoved()
		c.RegistryError("register")
		c.TicketIssued("get")
		c.TicketClosed()
		c.Completion("get", "OK")
		c.InboundRequest("GET")
		c.Notification("all", false)
		c.SignalEmitted("GET")
		c.TransportError("do_request")
		c.IPCCall("Get", 0, time.Millisecond)
		c.ConnectionOpened()
		c.ConnectionClosed()
	})
}

// value gathers reg and returns the counter or gauge value of the series
// name with the given label values, in label-name order.
func value(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			if len(m.GetLabel()) != len(labels) {
				continue
			}
			for i, l := range m.GetLabel() {
				if l.GetValue() != labels[i] {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s%v not gathered", name, labels)
	return 0
}

func TestTickets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.TicketIssued("get")
	m.TicketIssued("get")
	m.TicketIssued("observe")
	m.TicketClosed()

	assert.Equal(t, 2.0, value(t, reg, "iotcon_tickets_issued_total", "get"))
	assert.Equal(t, 1.0, value(t, reg, "iotcon_tickets_issued_total", "observe"))
	assert.Equal(t, 2.0, value(t, reg, "iotcon_tickets_in_flight"))
}

func TestNotificationLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.Notification("list", true)
	m.Notification("list", false)
	m.Notification("list", false)

	assert.Equal(t, 1.0, value(t, reg, "iotcon_notifications_total", "list", "true"))
	assert.Equal(t, 2.0, value(t, reg, "iotcon_notifications_total", "list", "false"))
}

func TestIPCCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.IPCCall("RegisterResource", 0, 2*time.Millisecond)
	m.IPCCall("RegisterResource", -22, time.Millisecond)

	// Labels are gathered sorted by name: code, method.
	assert.Equal(t, 1.0, value(t, reg, "iotcon_ipc_calls_total", "-22", "RegisterResource"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "iotcon_ipc_call_duration_seconds" {
			found = true
			assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "duration histogram not gathered")
}

func TestResourcesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	m.ResourceAdded()
	m.ResourceAdded()
	m.ResourceRemoved()
	assert.Equal(t, 1.0, value(t, reg, "iotcon_resources_registered"))
}
