package net

import "strings"

// SessionFlag is the class of the session that owns a channel. Flags combine
// into masks for the ProtocolRegistry.
type SessionFlag uint8

// Session classes.
const (
	SessionInbound SessionFlag = 1 << iota
	SessionOutbound
	SessionManual
	SessionSeed

	SessionDefault = SessionInbound | SessionOutbound | SessionManual
	SessionAll     = SessionDefault | SessionSeed
)

// Has reports whether f intersects mask.
func (f SessionFlag) Has(mask SessionFlag) bool {
	return f&mask != 0
}

func (f SessionFlag) String() string {
	var names []string
	if f&SessionInbound != 0 {
		names = append(names, "inbound")
	}
	if f&SessionOutbound != 0 {
		names = append(names, "outbound")
	}
	if f&SessionManual != 0 {
		names = append(names, "manual")
	}
	if f&SessionSeed != 0 {
		names = append(names, "seed")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
