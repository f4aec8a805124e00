package net

import (
	"context"
	"sync"
)

// Protocol is one sub-protocol running on a channel.
type Protocol interface {
	// Name identifies the protocol in logs.
	Name() string

	// Start spawns the protocol's goroutines. It must not block.
	Start(ctx context.Context) error
}

// ProtocolConstructor builds a protocol for a channel. It may install message
// dispatchers on the channel before the read loop starts.
type ProtocolConstructor func(ch *Channel, p2p *P2P) Protocol

type protocolEntry struct {
	mask        SessionFlag
	constructor ProtocolConstructor
}

// ProtocolRegistry is the table of protocol constructors keyed by session
// mask.
type ProtocolRegistry struct {
	mtx     sync.RWMutex
	entries []protocolEntry
}

// NewProtocolRegistry creates an empty ProtocolRegistry.
func NewProtocolRegistry() *ProtocolRegistry {
	return &ProtocolRegistry{}
}

// Register records constructor for channels whose session intersects mask.
func (r *ProtocolRegistry) Register(mask SessionFlag, constructor ProtocolConstructor) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.entries = append(r.entries, protocolEntry{mask, constructor})
}

// Attach builds every protocol whose mask intersects class, in registration
// order. The protocols are not started.
func (r *ProtocolRegistry) Attach(class SessionFlag, ch *Channel, p2p *P2P) []Protocol {
	r.mtx.RLock()
	entries := make([]protocolEntry, len(r.entries))
	copy(entries, r.entries)
	r.mtx.RUnlock()

	var protocols []Protocol
	for _, e := range entries {
		if class.Has(e.mask) {
			protocols = append(protocols, e.constructor(ch, p2p))
		}
	}
	return protocols
}

// Len returns the number of registered constructors.
func (r *ProtocolRegistry) Len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return len(r.entries)
}
