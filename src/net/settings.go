package net

import (
	"time"

	"github.com/google/uuid"
)

// Default network settings.
const (
	DefaultOutboundConnections = 5
	DefaultInboundConnections  = 0
	DefaultManualAttemptLimit  = 0
	DefaultSeedQueryTimeout    = 8 * time.Second
	DefaultConnectTimeout      = 10 * time.Second
	DefaultHandshakeTimeout    = 4 * time.Second
	DefaultWriteTimeout        = 10 * time.Second
	DefaultPingInterval        = 30 * time.Second
	DefaultPingTimeout         = 10 * time.Second
	DefaultOutboundRetry       = 15 * time.Second
	DefaultReconnectBase       = 500 * time.Millisecond
	DefaultReconnectMax        = 30 * time.Second
	DefaultMaxHosts            = 1000
	DefaultMaxAddrsReply       = 64
	DefaultBroadcastWorkers    = 16
	DefaultNetworkName         = "darkfi"
)

// Settings configures one P2P network.
type Settings struct {
	// NodeID identifies this node in version handshakes. It is used to detect
	// connections to self.
	NodeID string

	// Network is the name of the network this node belongs to. The version
	// handshake fails against peers announcing a different network.
	Network string

	// Inbound lists the addresses the inbound session binds to. An empty list
	// disables inbound connections.
	Inbound []string

	// ExternalAddr lists the addresses advertised to other nodes. Outbound
	// slots never dial them.
	ExternalAddr []string

	// Peers lists the addresses the manual session keeps connected.
	Peers []string

	// Seeds lists the addresses queried for hosts when the network starts.
	Seeds []string

	// OutboundConnections is the number of outbound slots.
	OutboundConnections int

	// InboundConnections caps the number of concurrent inbound channels. Zero
	// means unlimited.
	InboundConnections int

	// ManualAttemptLimit caps the number of connection attempts of the manual
	// session per peer. Zero means unlimited.
	ManualAttemptLimit int

	SeedQueryTimeout time.Duration
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration

	// OutboundRetry is how long an outbound slot sleeps after a failed attempt
	// or when no address is available.
	OutboundRetry time.Duration

	// ReconnectBase and ReconnectMax bound the randomized exponential backoff
	// of the manual session.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration

	MaxHosts         int
	MaxAddrsReply    int
	BroadcastWorkers int
}

// NewDefaultSettings returns Settings with default values and a random
// NodeID.
func NewDefaultSettings() *Settings {
	return &Settings{
		NodeID:              uuid.New().String(),
		Network:             DefaultNetworkName,
		OutboundConnections: DefaultOutboundConnections,
		InboundConnections:  DefaultInboundConnections,
		ManualAttemptLimit:  DefaultManualAttemptLimit,
		SeedQueryTimeout:    DefaultSeedQueryTimeout,
		ConnectTimeout:      DefaultConnectTimeout,
		HandshakeTimeout:    DefaultHandshakeTimeout,
		WriteTimeout:        DefaultWriteTimeout,
		PingInterval:        DefaultPingInterval,
		PingTimeout:         DefaultPingTimeout,
		OutboundRetry:       DefaultOutboundRetry,
		ReconnectBase:       DefaultReconnectBase,
		ReconnectMax:        DefaultReconnectMax,
		MaxHosts:            DefaultMaxHosts,
		MaxAddrsReply:       DefaultMaxAddrsReply,
		BroadcastWorkers:    DefaultBroadcastWorkers,
	}
}

// isExternal reports whether addr is one of our advertised addresses.
func (s *Settings) isExternal(addr string) bool {
	for _, a := range s.ExternalAddr {
		if a == addr {
			return true
		}
	}
	return false
}
