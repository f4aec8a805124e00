package net

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// ProtocolPing checks that the peer is alive. Every PingInterval it sends a
// nonce and stops the channel if the matching pong does not arrive within
// PingTimeout. It answers the peer's pings.
type ProtocolPing struct {
	channel  *Channel
	settings *Settings

	pingSub *MessageSubscription[PingMessage]
	pongSub *MessageSubscription[PongMessage]

	jobs *ProtocolJobsManager
}

// NewProtocolPing is a ProtocolConstructor.
func NewProtocolPing(ch *Channel, p2p *P2P) Protocol {
	AddDispatch[PingMessage](ch.Messages())
	AddDispatch[PongMessage](ch.Messages())

	pingSub, _ := SubscribeMsg[PingMessage](ch.Messages())
	pongSub, _ := SubscribeMsg[PongMessage](ch.Messages())

	return &ProtocolPing{
		channel:  ch,
		settings: p2p.Settings(),
		pingSub:  pingSub,
		pongSub:  pongSub,
		jobs:     NewProtocolJobsManager("ping", ch),
	}
}

// Name implements the Protocol interface.
func (p *ProtocolPing) Name() string {
	return "ping"
}

// Start implements the Protocol interface.
func (p *ProtocolPing) Start(ctx context.Context) error {
	p.jobs.Start(ctx)
	p.jobs.Spawn(p.runPingPong)
	p.jobs.Spawn(p.replyToPing)
	return nil
}

func (p *ProtocolPing) runPingPong(ctx context.Context) error {
	if p.settings.PingInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(p.settings.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		nonce := rand.Uint32()
		if err := p.channel.Send(&PingMessage{Nonce: nonce}); err != nil {
			return err
		}

		if err := p.waitPong(ctx, nonce); err != nil {
			p.channel.logger.WithError(err).Warn("Ping failed, stopping channel")
			p.channel.Stop()
			return err
		}
	}
}

func (p *ProtocolPing) waitPong(ctx context.Context, nonce uint32) error {
	if p.settings.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.PingTimeout)
		defer cancel()
	}

	pong, err := p.pongSub.Receive(ctx)
	if err != nil {
		return err
	}
	if pong.Nonce != nonce {
		return fmt.Errorf("pong nonce %d does not match ping nonce %d", pong.Nonce, nonce)
	}
	return nil
}

func (p *ProtocolPing) replyToPing(ctx context.Context) error {
	for {
		ping, err := p.pingSub.Receive(ctx)
		if err != nil {
			return err
		}
		if err := p.channel.Send(&PongMessage{Nonce: ping.Nonce}); err != nil {
			return err
		}
	}
}
