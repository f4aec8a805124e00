package net

import (
	"github.com/mosaicnetworks/streamlet/src/serial"
)

// Commands of the messages every channel understands.
const (
	CmdVersion = "version"
	CmdVerack  = "verack"
	CmdPing    = "ping"
	CmdPong    = "pong"
	CmdGetAddr = "getaddr"
	CmdAddr    = "addr"
)

// VersionMessage opens the handshake.
type VersionMessage struct {
	NodeID  string
	Network string
	Version string
}

// Name implements the Message interface.
func (m *VersionMessage) Name() string { return CmdVersion }

// Encode implements the Message interface.
func (m *VersionMessage) Encode(e *serial.Encoder) {
	e.WriteString(m.NodeID)
	e.WriteString(m.Network)
	e.WriteString(m.Version)
}

// Decode implements the Message interface.
func (m *VersionMessage) Decode(d *serial.Decoder) {
	m.NodeID = d.ReadString()
	m.Network = d.ReadString()
	m.Version = d.ReadString()
}

// VerackMessage acknowledges a VersionMessage.
type VerackMessage struct {
	NodeID string
}

// Name implements the Message interface.
func (m *VerackMessage) Name() string { return CmdVerack }

// Encode implements the Message interface.
func (m *VerackMessage) Encode(e *serial.Encoder) { e.WriteString(m.NodeID) }

// Decode implements the Message interface.
func (m *VerackMessage) Decode(d *serial.Decoder) { m.NodeID = d.ReadString() }

// PingMessage carries a nonce that the peer echoes in a PongMessage.
type PingMessage struct {
	Nonce uint32
}

// Name implements the Message interface.
func (m *PingMessage) Name() string { return CmdPing }

// Encode implements the Message interface.
func (m *PingMessage) Encode(e *serial.Encoder) { e.WriteU32(m.Nonce) }

// Decode implements the Message interface.
func (m *PingMessage) Decode(d *serial.Decoder) { m.Nonce = d.ReadU32() }

// PongMessage answers a PingMessage.
type PongMessage struct {
	Nonce uint32
}

// Name implements the Message interface.
func (m *PongMessage) Name() string { return CmdPong }

// Encode implements the Message interface.
func (m *PongMessage) Encode(e *serial.Encoder) { e.WriteU32(m.Nonce) }

// Decode implements the Message interface.
func (m *PongMessage) Decode(d *serial.Decoder) { m.Nonce = d.ReadU32() }

// GetAddrMessage requests known addresses.
type GetAddrMessage struct{}

// Name implements the Message interface.
func (m *GetAddrMessage) Name() string { return CmdGetAddr }

// Encode implements the Message interface.
func (m *GetAddrMessage) Encode(e *serial.Encoder) {}

// Decode implements the Message interface.
func (m *GetAddrMessage) Decode(d *serial.Decoder) {}

// AddrMessage carries a list of addresses.
type AddrMessage struct {
	Addrs []string
}

// Name implements the Message interface.
func (m *AddrMessage) Name() string { return CmdAddr }

// Encode implements the Message interface.
func (m *AddrMessage) Encode(e *serial.Encoder) { serial.WriteStringSeq(e, m.Addrs) }

// Decode implements the Message interface.
func (m *AddrMessage) Decode(d *serial.Decoder) { m.Addrs = serial.ReadStringSeq(d) }
