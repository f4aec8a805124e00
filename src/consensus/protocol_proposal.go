package consensus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/net"
)

// ProtocolProposal feeds the block proposals received on a channel to the
// ValidatorState and relays the new ones.
type ProtocolProposal struct {
	channel *net.Channel
	state   *ValidatorState
	pub     *Publisher

	proposalSub *net.MessageSubscription[BlockProposal]
	jobs        *net.ProtocolJobsManager
	logger      *logrus.Entry
}

// NewProtocolProposal returns the ProtocolConstructor of ProtocolProposal.
func NewProtocolProposal(state *ValidatorState, pub *Publisher) net.ProtocolConstructor {
	return func(ch *net.Channel, p2p *net.P2P) net.Protocol {
		net.AddDispatch[BlockProposal](ch.Messages())
		proposalSub, _ := net.SubscribeMsg[BlockProposal](ch.Messages())

		return &ProtocolProposal{
			channel:     ch,
			state:       state,
			pub:         pub,
			proposalSub: proposalSub,
			jobs:        net.NewProtocolJobsManager("proposal", ch),
			logger:      ch.Logger().WithField("protocol", "proposal"),
		}
	}
}

// Name implements the net.Protocol interface.
func (p *ProtocolProposal) Name() string {
	return "proposal"
}

// Start implements the net.Protocol interface.
func (p *ProtocolProposal) Start(ctx context.Context) error {
	p.jobs.Start(ctx)
	p.jobs.Spawn(p.handleReceiveProposal)
	return nil
}

func (p *ProtocolProposal) handleReceiveProposal(ctx context.Context) error {
	for {
		proposal, err := p.proposalSub.Receive(ctx)
		if err != nil {
			return err
		}

		res, err := p.state.ReceiveProposal(proposal)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"slot":   proposal.Block.Slot,
				"parent": proposal.Block.Parent,
			}).Debug("Rejected proposal")
			continue
		}

		p.pub.Publish(res, proposal, p.channel.Address())
	}
}
