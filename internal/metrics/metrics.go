// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry shared by every engine of a host
type Metrics struct {
	Registry *prometheus.Registry

	linesIn      *prometheus.CounterVec
	linesOut     *prometheus.CounterVec
	lag          *prometheus.GaugeVec
	connects     *prometheus.CounterVec
	disconnects  *prometheus.CounterVec
	saslFailures *prometheus.CounterVec
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		linesIn: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irc_lines_received_total",
			Help: "Protocol lines received from the server",
		}, []string{"network"}),
		linesOut: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irc_lines_sent_total",
			Help: "Protocol lines written to the server",
		}, []string{"network"}),
		lag: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "irc_lag_seconds",
			Help: "Round trip of the last lag probe",
		}, []string{"network"}),
		connects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irc_connects_total",
			Help: "Successful transport connections",
		}, []string{"network"}),
		disconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irc_disconnects_total",
			Help: "Disconnects by cause",
		}, []string{"network", "cause"}),
		saslFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irc_sasl_failures_total",
			Help: "SASL authentication failures",
		}, []string{"network"}),
	}
}

// Handler serves the registry in the OpenMetrics format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// For returns the collectors bound to one network label
func (m *Metrics) For(network string) *Network {
	if m == nil {
		return nil
	}
	return &Network{m: m, network: network}
}

// Network records metrics for one connection. A nil *Network records nothing.
type Network struct {
	m       *Metrics
	network string
}

func (n *Network) LineIn() {
	if n != nil {
		n.m.linesIn.WithLabelValues(n.network).Inc()
	}
}

func (n *Network) LineOut() {
	if n != nil {
		n.m.linesOut.WithLabelValues(n.network).Inc()
	}
}

func (n *Network) Lag(rtt time.Duration) {
	if n != nil {
		n.m.lag.WithLabelValues(n.network).Set(rtt.Seconds())
	}
}

func (n *Network) Connected() {
	if n != nil {
		n.m.connects.WithLabelValues(n.network).Inc()
	}
}

// Disconnected counts a disconnect; cause is a transport category or one of
// "eof", "user", "timeout", "ping-timeout"
func (n *Network) Disconnected(cause string) {
	if n != nil {
		n.m.disconnects.WithLabelValues(n.network, cause).Inc()
	}
}

func (n *Network) SASLFailed() {
	if n != nil {
		n.m.saslFailures.WithLabelValues(n.network).Inc()
	}
}
