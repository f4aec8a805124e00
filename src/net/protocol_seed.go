package net

import (
	"context"
	"errors"
)

// errSeedQueryDone is the reason a seed channel stops after a successful
// query.
var errSeedQueryDone = errors.New("seed query done")

// ProtocolSeed queries a seed node for addresses. It sends our external
// addresses and a getaddr, stores the addr reply in the Hosts registry, and
// stops the channel.
type ProtocolSeed struct {
	channel  *Channel
	hosts    *Hosts
	settings *Settings

	addrSub *MessageSubscription[AddrMessage]

	jobs *ProtocolJobsManager
}

// NewProtocolSeed is a ProtocolConstructor.
func NewProtocolSeed(ch *Channel, p2p *P2P) Protocol {
	AddDispatch[AddrMessage](ch.Messages())

	addrSub, _ := SubscribeMsg[AddrMessage](ch.Messages())

	return &ProtocolSeed{
		channel:  ch,
		hosts:    p2p.Hosts(),
		settings: p2p.Settings(),
		addrSub:  addrSub,
		jobs:     NewProtocolJobsManager("seed", ch),
	}
}

// Name implements the Protocol interface.
func (p *ProtocolSeed) Name() string {
	return "seed"
}

// Start implements the Protocol interface.
func (p *ProtocolSeed) Start(ctx context.Context) error {
	p.jobs.Start(ctx)
	p.jobs.Spawn(p.run)
	return nil
}

func (p *ProtocolSeed) run(ctx context.Context) error {
	if len(p.settings.ExternalAddr) > 0 {
		if err := p.channel.Send(&AddrMessage{Addrs: p.settings.ExternalAddr}); err != nil {
			return err
		}
	}
	if err := p.channel.Send(&GetAddrMessage{}); err != nil {
		return err
	}

	msg, err := p.addrSub.Receive(ctx)
	if err != nil {
		return err
	}

	p.channel.logger.WithField("count", len(msg.Addrs)).Debug("Seed returned addresses")
	p.hosts.Store(filterExternal(p.settings, msg.Addrs))
	p.channel.stopWith(errSeedQueryDone)
	return nil
}
