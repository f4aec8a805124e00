package net

import (
	"context"
)

// ProtocolAddress exchanges known addresses. It answers getaddr with a sample
// of the Hosts registry and stores the addresses it receives. On outbound and
// manual channels it starts by sending our external addresses and a getaddr.
type ProtocolAddress struct {
	channel  *Channel
	hosts    *Hosts
	settings *Settings

	addrSub    *MessageSubscription[AddrMessage]
	getAddrSub *MessageSubscription[GetAddrMessage]

	jobs *ProtocolJobsManager
}

// NewProtocolAddress is a ProtocolConstructor.
func NewProtocolAddress(ch *Channel, p2p *P2P) Protocol {
	AddDispatch[AddrMessage](ch.Messages())
	AddDispatch[GetAddrMessage](ch.Messages())

	addrSub, _ := SubscribeMsg[AddrMessage](ch.Messages())
	getAddrSub, _ := SubscribeMsg[GetAddrMessage](ch.Messages())

	return &ProtocolAddress{
		channel:    ch,
		hosts:      p2p.Hosts(),
		settings:   p2p.Settings(),
		addrSub:    addrSub,
		getAddrSub: getAddrSub,
		jobs:       NewProtocolJobsManager("address", ch),
	}
}

// Name implements the Protocol interface.
func (p *ProtocolAddress) Name() string {
	return "address"
}

// Start implements the Protocol interface.
func (p *ProtocolAddress) Start(ctx context.Context) error {
	p.jobs.Start(ctx)
	p.jobs.Spawn(p.handleReceiveAddrs)
	p.jobs.Spawn(p.handleReceiveGetAddr)

	if p.channel.Session().Has(SessionOutbound | SessionManual) {
		if len(p.settings.ExternalAddr) > 0 {
			if err := p.channel.Send(&AddrMessage{Addrs: p.settings.ExternalAddr}); err != nil {
				return err
			}
		}
		if err := p.channel.Send(&GetAddrMessage{}); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProtocolAddress) handleReceiveAddrs(ctx context.Context) error {
	for {
		msg, err := p.addrSub.Receive(ctx)
		if err != nil {
			return err
		}
		p.channel.logger.WithField("count", len(msg.Addrs)).Debug("Received addresses")
		p.hosts.Store(filterExternal(p.settings, msg.Addrs))
	}
}

func (p *ProtocolAddress) handleReceiveGetAddr(ctx context.Context) error {
	for {
		if _, err := p.getAddrSub.Receive(ctx); err != nil {
			return err
		}
		addrs := p.hosts.Sample(p.settings.MaxAddrsReply)
		if err := p.channel.Send(&AddrMessage{Addrs: addrs}); err != nil {
			return err
		}
	}
}

// filterExternal drops our own advertised addresses from addrs.
func filterExternal(settings *Settings, addrs []string) []string {
	res := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if !settings.isExternal(a) {
			res = append(res, a)
		}
	}
	return res
}
