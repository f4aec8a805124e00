package consensus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/net"
)

// ProtocolVote feeds the votes received on a channel to the ValidatorState.
// Accepted votes are relayed to the other peers, own votes are broadcast and
// finalized blocks are announced on the sync network. A rejected vote is
// logged and skipped.
type ProtocolVote struct {
	channel *net.Channel
	state   *ValidatorState
	pub     *Publisher

	voteSub *net.MessageSubscription[Vote]
	jobs    *net.ProtocolJobsManager
	logger  *logrus.Entry
}

// NewProtocolVote returns the ProtocolConstructor of ProtocolVote.
func NewProtocolVote(state *ValidatorState, pub *Publisher) net.ProtocolConstructor {
	return func(ch *net.Channel, p2p *net.P2P) net.Protocol {
		net.AddDispatch[Vote](ch.Messages())
		voteSub, _ := net.SubscribeMsg[Vote](ch.Messages())

		return &ProtocolVote{
			channel: ch,
			state:   state,
			pub:     pub,
			voteSub: voteSub,
			jobs:    net.NewProtocolJobsManager("vote", ch),
			logger:  ch.Logger().WithField("protocol", "vote"),
		}
	}
}

// Name implements the net.Protocol interface.
func (p *ProtocolVote) Name() string {
	return "vote"
}

// Start implements the net.Protocol interface.
func (p *ProtocolVote) Start(ctx context.Context) error {
	p.jobs.Start(ctx)
	p.jobs.Spawn(p.handleReceiveVote)
	return nil
}

func (p *ProtocolVote) handleReceiveVote(ctx context.Context) error {
	for {
		vote, err := p.voteSub.Receive(ctx)
		if err != nil {
			return err
		}

		res, err := p.state.ReceiveVote(vote)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"block": vote.Block,
				"slot":  vote.Slot,
			}).Debug("Rejected vote")
			continue
		}

		p.pub.Publish(res, vote, p.channel.Address())
	}
}
