// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes Prometheus instrumentation for command execution,
// bridge state, tc rule application and push observers.
//
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all tcbridge Prometheus metrics
type Metrics struct {
	// External command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Bridge state
	BridgeActive  prometheus.Gauge
	BridgeMembers prometheus.Gauge

	// TC compiler
	TCApplies *prometheus.CounterVec

	// Push channel
	Observers  prometheus.Gauge
	Broadcasts *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metric set and registers it, plus the Go and process
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcbridge_commands_total",
			Help: "Total number of external command invocations",
		}, []string{"tool", "outcome"}),

		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tcbridge_command_duration_seconds",
			Help:    "Wall time of external command invocations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"tool"}),

		BridgeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcbridge_bridge_active",
			Help: "Whether the managed bridge is active (1) or not (0)",
		}),

		BridgeMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcbridge_bridge_members",
			Help: "Number of interfaces enslaved to the managed bridge",
		}),

		TCApplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcbridge_tc_applies_total",
			Help: "Total number of tc rule applications by topology and result",
		}, []string{"topology", "result"}),

		Observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcbridge_push_observers",
			Help: "Number of connected push observers",
		}),

		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcbridge_push_messages_total",
			Help: "Total number of push messages by result",
		}, []string{"result"}),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.CommandsTotal.Describe(ch)
	m.CommandDuration.Describe(ch)
	m.BridgeActive.Describe(ch)
	m.BridgeMembers.Describe(ch)
	m.TCApplies.Describe(ch)
	m.Observers.Describe(ch)
	m.Broadcasts.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.CommandsTotal.Collect(ch)
	m.CommandDuration.Collect(ch)
	m.BridgeActive.Collect(ch)
	m.BridgeMembers.Collect(ch)
	m.TCApplies.Collect(ch)
	m.Observers.Collect(ch)
	m.Broadcasts.Collect(ch)
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one external command invocation.
func (m *Metrics) ObserveCommand(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(tool, outcome).Inc()
	m.CommandDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// SetBridge records the bridge's active flag and member count.
func (m *Metrics) SetBridge(active bool, members int) {
	if m == nil {
		return
	}
	if active {
		m.BridgeActive.Set(1)
	} else {
		m.BridgeActive.Set(0)
	}
	m.BridgeMembers.Set(float64(members))
}

// IncTCApply counts a tc rule application.
func (m *Metrics) IncTCApply(topology string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.TCApplies.WithLabelValues(topology, result).Inc()
}

// SetObservers records the number of connected push observers.
func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}
	m.Observers.Set(float64(n))
}

// IncBroadcast counts one push message delivery attempt.
func (m *Metrics) IncBroadcast(result string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(result).Inc()
}
