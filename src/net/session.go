package net

import (
	"context"
)

// Session is a connection-management policy for one class of peers.
type Session interface {
	// Type returns the session class.
	Type() SessionFlag

	// Info describes the session for GetInfo.
	Info() SessionInfo

	// Stop stops connecting and accepting. Connected channels are stopped
	// by P2P.
	Stop()
}

// SessionInfo describes a session.
type SessionInfo struct {
	Type    string     `json:"type"`
	Entries []SlotInfo `json:"entries"`
}

// SlotInfo describes one address or slot of a session.
type SlotInfo struct {
	Addr      string       `json:"addr"`
	State     string       `json:"state"`
	Attempts  int          `json:"attempts,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	Channel   *ChannelInfo `json:"channel,omitempty"`
}

// Slot states.
const (
	slotIdle       = "idle"
	slotConnecting = "connecting"
	slotConnected  = "connected"
	slotListening  = "listening"
)

// ChannelResult is published to SubscribeChannel subscribers. Stored channels
// carry the Channel; failed outbound attempts carry the error.
type ChannelResult struct {
	Addr    string
	Session SessionFlag
	Channel *Channel
	Err     error
}

// registerChannel runs the steps every session performs on a new channel:
// attach the registry protocols, perform the version handshake, start the
// protocols and store the channel. Seed channels are not stored. On failure
// the channel is stopped and its pending reservation released.
func (p *P2P) registerChannel(ctx context.Context, ch *Channel) error {
	release := func() {
		if ch.Session() != SessionSeed {
			p.RemovePending(ch.Address())
		}
	}

	protocols := p.registry.Attach(ch.Session(), ch, p)
	handshake := NewProtocolVersion(ch, p.settings)

	ch.Start()

	if err := handshake.Run(ctx); err != nil {
		ch.Stop()
		release()
		return err
	}

	for _, proto := range protocols {
		if err := proto.Start(ctx); err != nil {
			ch.logger.WithField("protocol", proto.Name()).WithError(err).Debug("Protocol start failed")
			ch.Stop()
			release()
			return err
		}
	}

	if ch.Session() == SessionSeed {
		return nil
	}

	// The stop subscription is taken before storing so that a channel
	// stopping right away is still removed.
	stop := ch.SubscribeStop()
	p.Store(ch)

	go func() {
		defer stop.Unsubscribe()
		stop.Receive(context.Background())
		p.Remove(ch)
	}()

	return nil
}

// connect dials addr and registers the resulting channel. The caller must
// have reserved addr with AddPending unless session is SessionSeed.
func (p *P2P) connect(ctx context.Context, addr string, session SessionFlag) (*Channel, error) {
	conn, err := p.stream.Dial(addr, p.settings.ConnectTimeout)
	if err != nil {
		if session != SessionSeed {
			p.RemovePending(addr)
		}
		p.metrics.connectAttempt(session, err)
		return nil, err
	}

	ch := NewChannel(conn, addr, session, p.settings.WriteTimeout, p.metrics, p.logger)
	err = p.registerChannel(ctx, ch)
	p.metrics.connectAttempt(session, err)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// waitStop blocks until ch stops or ctx is done. It returns the reason the
// channel stopped, or the context error.
func waitStop(ctx context.Context, ch *Channel) error {
	stop := ch.SubscribeStop()
	defer stop.Unsubscribe()

	reason, err := stop.Receive(ctx)
	if err != nil {
		return err
	}
	return reason
}
