// Package net implements the peer-to-peer layer of a streamlet node.
//
// A P2P network keeps a set of Channels, one per connected peer. Every packet
// on a channel carries a command and an encoded Message; the channel's
// MessageSubsystem decodes it and hands it to every subscriber of that
// message type. Each subscriber has its own queue, so protocols consume
// messages at their own pace without blocking the read loop.
//
// Protocols are attached to channels through the ProtocolRegistry, which maps
// a mask of session classes to protocol constructors. The default protocols
// are ping, address exchange, and seed queries; the consensus package
// registers its own.
//
// Sessions
//
// Four sessions manage connections:
//
// - Manual: keeps the configured peers connected, reconnecting with a capped
// randomized exponential backoff.
//
// - Inbound: accepts connections on the configured addresses, up to a limit.
//
// - Outbound: fills a fixed number of slots with addresses sampled from the
// Hosts registry.
//
// - Seed: queries the configured seeds for addresses when the network starts.
//
// A connection attempt first reserves its address in the pending set. When
// the version handshake succeeds the address moves to the connected set.
// An address is never in both sets.
//
// Stream layers
//
// Connections come from a StreamLayer. TCPStreamLayer speaks plain TCP;
// InmemNetwork connects P2P instances of the same process with in-memory
// pipes and is used in tests.
package net
