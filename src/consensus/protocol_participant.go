package consensus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/net"
)

// ProtocolParticipant spreads participant announcements. It sends the known
// participants when the channel starts and relays the new ones it receives.
type ProtocolParticipant struct {
	channel *net.Channel
	p2p     *net.P2P
	state   *ValidatorState

	participantSub *net.MessageSubscription[Participant]
	jobs           *net.ProtocolJobsManager
	logger         *logrus.Entry
}

// NewProtocolParticipant returns the ProtocolConstructor of
// ProtocolParticipant.
func NewProtocolParticipant(state *ValidatorState) net.ProtocolConstructor {
	return func(ch *net.Channel, p2p *net.P2P) net.Protocol {
		net.AddDispatch[Participant](ch.Messages())
		participantSub, _ := net.SubscribeMsg[Participant](ch.Messages())

		return &ProtocolParticipant{
			channel:        ch,
			p2p:            p2p,
			state:          state,
			participantSub: participantSub,
			jobs:           net.NewProtocolJobsManager("participant", ch),
			logger:         ch.Logger().WithField("protocol", "participant"),
		}
	}
}

// Name implements the net.Protocol interface.
func (p *ProtocolParticipant) Name() string {
	return "participant"
}

// Start implements the net.Protocol interface.
func (p *ProtocolParticipant) Start(ctx context.Context) error {
	p.jobs.Start(ctx)
	p.jobs.Spawn(p.handleReceiveParticipant)

	for _, participant := range p.state.Participants() {
		if err := p.channel.Send(participant); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProtocolParticipant) handleReceiveParticipant(ctx context.Context) error {
	for {
		participant, err := p.participantSub.Receive(ctx)
		if err != nil {
			return err
		}

		if !p.state.AddParticipant(participant) {
			continue
		}

		p.logger.WithFields(logrus.Fields{
			"address": participant.Address,
			"joined":  participant.Joined,
		}).Debug("Relaying participant")

		err = p.p2p.BroadcastWithExclude(participant, []string{p.channel.Address()})
		if err != nil {
			p.logger.WithError(err).Debug("Relaying participant")
		}
	}
}
