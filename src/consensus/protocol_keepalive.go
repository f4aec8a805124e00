package consensus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/net"
)

// ProtocolKeepAlive lifts quarantines on signed keepalives. A keepalive that
// lifted a quarantine is relayed.
type ProtocolKeepAlive struct {
	channel *net.Channel
	p2p     *net.P2P
	state   *ValidatorState

	keepAliveSub *net.MessageSubscription[KeepAlive]
	jobs         *net.ProtocolJobsManager
	logger       *logrus.Entry
}

// NewProtocolKeepAlive returns the ProtocolConstructor of ProtocolKeepAlive.
func NewProtocolKeepAlive(state *ValidatorState) net.ProtocolConstructor {
	return func(ch *net.Channel, p2p *net.P2P) net.Protocol {
		net.AddDispatch[KeepAlive](ch.Messages())
		keepAliveSub, _ := net.SubscribeMsg[KeepAlive](ch.Messages())

		return &ProtocolKeepAlive{
			channel:      ch,
			p2p:          p2p,
			state:        state,
			keepAliveSub: keepAliveSub,
			jobs:         net.NewProtocolJobsManager("keepalive", ch),
			logger:       ch.Logger().WithField("protocol", "keepalive"),
		}
	}
}

// Name implements the net.Protocol interface.
func (p *ProtocolKeepAlive) Name() string {
	return "keepalive"
}

// Start implements the net.Protocol interface.
func (p *ProtocolKeepAlive) Start(ctx context.Context) error {
	p.jobs.Start(ctx)
	p.jobs.Spawn(p.handleReceiveKeepAlive)
	return nil
}

func (p *ProtocolKeepAlive) handleReceiveKeepAlive(ctx context.Context) error {
	for {
		keepAlive, err := p.keepAliveSub.Receive(ctx)
		if err != nil {
			return err
		}

		cleared, err := p.state.ClearQuarantine(keepAlive)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"address": keepAlive.Address,
			}).Debug("Rejected keepalive")
			continue
		}
		if !cleared {
			continue
		}

		err = p.p2p.BroadcastWithExclude(keepAlive, []string{p.channel.Address()})
		if err != nil {
			p.logger.WithError(err).Debug("Relaying keepalive")
		}
	}
}
