package net

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespaceStreamlet = "streamlet"
	subsystemP2P       = "p2p"

	labelSession = "session"
	labelCommand = "command"
	labelResult  = "result"
	labelNetwork = "network"
)

// Metrics collects the counters of one P2P network.
type Metrics struct {
	Channels          *prometheus.GaugeVec
	Pending           prometheus.Gauge
	Hosts             prometheus.Gauge
	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	ConnectAttempts   *prometheus.CounterVec
	BroadcastFailures prometheus.Counter
}

// NewMetrics creates the P2P metrics of the network called name and registers
// them with reg. A nil reg leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{labelNetwork: name}, reg)
	}
	factory := promauto.With(reg)

	return &Metrics{
		Channels: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemP2P,
			Name:      "channels",
			Help:      "number of connected channels per session",
		}, []string{labelSession}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemP2P,
			Name:      "pending_addresses",
			Help:      "number of addresses with a connection attempt in flight",
		}),
		Hosts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemP2P,
			Name:      "known_hosts",
			Help:      "number of addresses in the host registry",
		}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemP2P,
			Name:      "messages_sent_total",
			Help:      "number of messages written per command",
		}, []string{labelCommand}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemP2P,
			Name:      "messages_received_total",
			Help:      "number of messages read per command",
		}, []string{labelCommand}),
		ConnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemP2P,
			Name:      "connect_attempts_total",
			Help:      "number of connection attempts per session and result",
		}, []string{labelSession, labelResult}),
		BroadcastFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemP2P,
			Name:      "broadcast_failures_total",
			Help:      "number of per-peer send failures during broadcasts",
		}),
	}
}

func (m *Metrics) connectAttempt(session SessionFlag, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ConnectAttempts.WithLabelValues(session.String(), result).Inc()
}
