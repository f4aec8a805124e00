package consensus

import (
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/net"
)

// Publisher spreads the outcome of the ValidatorState operations: relayed
// messages and own votes go to the consensus network, finalized blocks go to
// the sync network.
type Publisher struct {
	consensus *net.P2P
	sync      *net.P2P
	logger    *logrus.Entry
}

// NewPublisher creates a Publisher. sync may be nil.
func NewPublisher(consensus, sync *net.P2P, logger *logrus.Entry) *Publisher {
	return &Publisher{
		consensus: consensus,
		sync:      sync,
		logger:    logger,
	}
}

// Publish relays received to the consensus network, except to the channel at
// from, when res accepted it. It then broadcasts the vote cast by the local
// node and announces the newly finalized blocks.
func (p *Publisher) Publish(res *VoteResult, received net.Message, from string) {
	if res == nil {
		return
	}

	if res.Accepted && received != nil {
		var exclude []string
		if from != "" {
			exclude = []string{from}
		}
		p.broadcast(p.consensus, received, exclude)
	}

	if res.Voted() {
		p.broadcast(p.consensus, res.Vote, nil)
	}

	p.PublishFinalized(res.Finalized)
}

// PublishFinalized announces infos on the sync network.
func (p *Publisher) PublishFinalized(infos []*BlockInfo) {
	if p.sync == nil {
		return
	}
	for _, info := range infos {
		p.broadcast(p.sync, info, nil)
	}
}

func (p *Publisher) broadcast(network *net.P2P, msg net.Message, exclude []string) {
	if network == nil {
		return
	}
	if err := network.BroadcastWithExclude(msg, exclude); err != nil {
		p.logger.WithError(err).WithField("command", msg.Name()).Debug("Broadcast incomplete")
	}
}

// RegisterProtocols registers the consensus protocols on the consensus network
// and the sync protocol on the sync network. It returns the Publisher shared
// by the protocols.
func RegisterProtocols(state *ValidatorState, consensus, sync *net.P2P, logger *logrus.Entry) *Publisher {
	pub := NewPublisher(consensus, sync, logger)

	registry := consensus.ProtocolRegistry()
	registry.Register(net.SessionDefault, NewProtocolVote(state, pub))
	registry.Register(net.SessionDefault, NewProtocolProposal(state, pub))
	registry.Register(net.SessionDefault, NewProtocolParticipant(state))
	registry.Register(net.SessionDefault, NewProtocolKeepAlive(state))

	if sync != nil {
		sync.ProtocolRegistry().Register(net.SessionDefault, NewProtocolSync(state))
	}

	return pub
}
