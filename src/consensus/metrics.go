package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespaceStreamlet = "streamlet"
	subsystemConsensus = "consensus"

	labelReason = "reason"
)

// Metrics collects the counters of the ValidatorState.
type Metrics struct {
	VotesAccepted   prometheus.Counter
	VotesRejected   *prometheus.CounterVec
	VotesCast       prometheus.Counter
	Notarized       prometheus.Counter
	Finalized       prometheus.Counter
	LastFinalized   prometheus.Gauge
	Participants    prometheus.Gauge
	Quarantined     prometheus.Gauge
	ProposalsIssued prometheus.Counter
}

// NewMetrics creates the consensus metrics and registers them with reg. A nil
// reg leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		VotesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "votes_accepted_total",
			Help:      "number of votes added to a block tally",
		}),
		VotesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "votes_rejected_total",
			Help:      "number of rejected votes per reason",
		}, []string{labelReason}),
		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "votes_cast_total",
			Help:      "number of votes signed by the local node",
		}),
		Notarized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "blocks_notarized_total",
			Help:      "number of blocks that reached a quorum of votes",
		}),
		Finalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "blocks_finalized_total",
			Help:      "number of finalized blocks",
		}),
		LastFinalized: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "last_finalized_slot",
			Help:      "slot of the last finalized block",
		}),
		Participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "participants",
			Help:      "number of known participants",
		}),
		Quarantined: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "quarantined_participants",
			Help:      "number of quarantined participants",
		}),
		ProposalsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceStreamlet,
			Subsystem: subsystemConsensus,
			Name:      "proposals_total",
			Help:      "number of blocks proposed by the local node",
		}),
	}
}

func (m *Metrics) rejected(err error) {
	reason := "other"
	switch err {
	case ErrInvalidSignature:
		reason = "signature"
	case ErrUnknownVoter:
		reason = "unknown_voter"
	case ErrQuarantinedVoter:
		reason = "quarantined"
	case ErrEquivocation:
		reason = "equivocation"
	case ErrUnknownBlock:
		reason = "unknown_block"
	case ErrSlotMismatch:
		reason = "slot_mismatch"
	}
	m.VotesRejected.WithLabelValues(reason).Inc()
}
