package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values
const (
	resultOK      = "ok"
	resultError   = "error"
	resultIgnored = "ignored"
)

// Metrics holds the engine's Prometheus metrics
type Metrics struct {
	Changes          *prometheus.CounterVec
	OperPulls        *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	ForwarderRunning prometheus.Gauge
}

// NewMetrics creates the engine metrics. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ifbridge_changes_total",
			Help: "Change events handled by the change dispatcher",
		}, []string{"result"}),

		OperPulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ifbridge_oper_pulls_total",
			Help: "Operational data pulls answered",
		}, []string{"result"}),

		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ifbridge_notifications_total",
			Help: "Link state notifications forwarded",
		}, []string{"result"}),

		ForwarderRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ifbridge_forwarder_running",
			Help: "Whether the link event forwarder is running (1) or has stopped (0)",
		}),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Changes.Describe(ch)
	m.OperPulls.Describe(ch)
	m.Notifications.Describe(ch)
	m.ForwarderRunning.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Changes.Collect(ch)
	m.OperPulls.Collect(ch)
	m.Notifications.Collect(ch)
	m.ForwarderRunning.Collect(ch)
}

// Register registers all metrics with reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m)
}

func (m *Metrics) change(result string) {
	if m != nil {
		m.Changes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) pull(result string) {
	if m != nil {
		m.OperPulls.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) notification(result string) {
	if m != nil {
		m.Notifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) forwarderRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.ForwarderRunning.Set(1)
	} else {
		m.ForwarderRunning.Set(0)
	}
}
