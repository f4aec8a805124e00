package net

import (
	"context"
	"errors"
	"fmt"

	"github.com/mosaicnetworks/streamlet/src/version"
)

var (
	// ErrNetworkMismatch is returned when the peer announces another network.
	ErrNetworkMismatch = errors.New("network mismatch")

	// ErrHandshakeTimeout is returned when the version handshake does not
	// complete within HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	errSelfConnection = errors.New("connected to self")
)

// ProtocolVersion performs the version/verack handshake that opens every
// channel.
type ProtocolVersion struct {
	channel  *Channel
	settings *Settings

	versionSub *MessageSubscription[VersionMessage]
	verackSub  *MessageSubscription[VerackMessage]
}

// NewProtocolVersion installs the handshake dispatchers on ch. It must be
// called before the channel starts.
func NewProtocolVersion(ch *Channel, settings *Settings) *ProtocolVersion {
	AddDispatch[VersionMessage](ch.Messages())
	AddDispatch[VerackMessage](ch.Messages())

	// The dispatchers were just added.
	versionSub, _ := SubscribeMsg[VersionMessage](ch.Messages())
	verackSub, _ := SubscribeMsg[VerackMessage](ch.Messages())

	return &ProtocolVersion{
		channel:    ch,
		settings:   settings,
		versionSub: versionSub,
		verackSub:  verackSub,
	}
}

// Run sends our version, checks the peer's, and exchanges veracks. It fails
// with ErrHandshakeTimeout when it takes longer than HandshakeTimeout.
func (p *ProtocolVersion) Run(ctx context.Context) error {
	defer p.versionSub.Unsubscribe()
	defer p.verackSub.Unsubscribe()

	if p.settings.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.HandshakeTimeout)
		defer cancel()
	}

	err := p.run(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrHandshakeTimeout
	}
	return err
}

func (p *ProtocolVersion) run(ctx context.Context) error {
	err := p.channel.Send(&VersionMessage{
		NodeID:  p.settings.NodeID,
		Network: p.settings.Network,
		Version: version.Version,
	})
	if err != nil {
		return err
	}

	peer, err := p.versionSub.Receive(ctx)
	if err != nil {
		return err
	}
	if peer.Network != p.settings.Network {
		return fmt.Errorf("%w: peer is on %q, we are on %q", ErrNetworkMismatch, peer.Network, p.settings.Network)
	}
	if peer.NodeID == p.settings.NodeID {
		return errSelfConnection
	}

	if err := p.channel.Send(&VerackMessage{NodeID: p.settings.NodeID}); err != nil {
		return err
	}

	if _, err := p.verackSub.Receive(ctx); err != nil {
		return err
	}

	p.channel.logger.WithField("peer_version", peer.Version).Debug("Handshake complete")
	return nil
}
