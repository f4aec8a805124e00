package consensus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/net"
)

// ProtocolSync runs on the sync network. It sends the finalized chain when the
// channel starts, applies the blocks it receives and relays the ones that were
// new to the local node.
type ProtocolSync struct {
	channel *net.Channel
	p2p     *net.P2P
	state   *ValidatorState

	blockSub *net.MessageSubscription[BlockInfo]
	jobs     *net.ProtocolJobsManager
	logger   *logrus.Entry
}

// NewProtocolSync returns the ProtocolConstructor of ProtocolSync.
func NewProtocolSync(state *ValidatorState) net.ProtocolConstructor {
	return func(ch *net.Channel, p2p *net.P2P) net.Protocol {
		net.AddDispatch[BlockInfo](ch.Messages())
		blockSub, _ := net.SubscribeMsg[BlockInfo](ch.Messages())

		return &ProtocolSync{
			channel:  ch,
			p2p:      p2p,
			state:    state,
			blockSub: blockSub,
			jobs:     net.NewProtocolJobsManager("sync", ch),
			logger:   ch.Logger().WithField("protocol", "sync"),
		}
	}
}

// Name implements the net.Protocol interface.
func (p *ProtocolSync) Name() string {
	return "sync"
}

// Start implements the net.Protocol interface.
func (p *ProtocolSync) Start(ctx context.Context) error {
	p.jobs.Start(ctx)
	p.jobs.Spawn(p.handleReceiveBlock)
	p.jobs.Spawn(p.sendFinalizedChain)
	return nil
}

// sendFinalizedChain sends the finalized chain to the peer, oldest first.
func (p *ProtocolSync) sendFinalizedChain(ctx context.Context) error {
	for _, info := range p.state.FinalizedChain() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.channel.Send(info); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProtocolSync) handleReceiveBlock(ctx context.Context) error {
	for {
		info, err := p.blockSub.Receive(ctx)
		if err != nil {
			return err
		}

		res, err := p.state.ReceiveFinalized(info)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"block": info.ID(),
				"slot":  info.Block.Slot,
			}).Debug("Rejected finalized block")
			continue
		}
		if !res.Accepted {
			continue
		}

		err = p.p2p.BroadcastWithExclude(info, []string{p.channel.Address()})
		if err != nil {
			p.logger.WithError(err).Debug("Relaying finalized block")
		}
	}
}
