package net

import (
	"net"
	"time"
)

// StreamLayer provides the connections a P2P network runs on.
type StreamLayer interface {
	// Listen binds bindAddr and returns a listener for inbound connections.
	Listen(bindAddr string) (net.Listener, error)

	// Dial is used to create a new outgoing connection
	Dial(address string, timeout time.Duration) (net.Conn, error)
}
