package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/streamlet/src/common"
	"github.com/mosaicnetworks/streamlet/src/net"
)

const (
	testTimeout = 10 * time.Second
	testTick    = 10 * time.Millisecond
)

func newTestP2P(t *testing.T, network *net.InmemNetwork, inbound string, peers ...string) *net.P2P {
	s := net.NewDefaultSettings()
	s.OutboundConnections = 0
	s.PingInterval = time.Hour
	s.ConnectTimeout = time.Second
	s.HandshakeTimeout = time.Second
	s.ReconnectBase = 10 * time.Millisecond
	s.ReconnectMax = 50 * time.Millisecond
	if inbound != "" {
		s.Inbound = []string{inbound}
	}
	s.Peers = peers

	return net.NewP2P(s, network, nil, common.NewTestEntry(t, common.TestLogLevel))
}

func runTestP2P(t *testing.T, p *net.P2P) {
	require.NoError(t, p.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background())
	}()

	t.Cleanup(func() {
		p.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(testTimeout):
			t.Error("P2P did not stop")
		}
	})
}

type testValidator struct {
	node  testNode
	state *ValidatorState
	p2p   *net.P2P
	pub   *Publisher
}

// TestProtocolsFinalizeOverNetwork connects three validators to a hub and a
// follower to the hub's sync network, then proposes three blocks.
func TestProtocolsFinalizeOverNetwork(t *testing.T) {
	network := net.NewInmemNetwork()
	nodes := newTestNodes(t, 3)

	hubAddr := net.NewInmemAddr()
	hubSyncAddr := net.NewInmemAddr()

	validators := make([]*testValidator, len(nodes))
	for i, n := range nodes {
		v := &testValidator{
			node:  n,
			state: newTestState(t, n.key, nodes),
		}
		if i == 0 {
			v.p2p = newTestP2P(t, network, hubAddr)
			sync := newTestP2P(t, network, hubSyncAddr)
			v.pub = RegisterProtocols(v.state, v.p2p, sync, common.NewTestEntry(t, common.TestLogLevel))
			runTestP2P(t, sync)
		} else {
			v.p2p = newTestP2P(t, network, "", hubAddr)
			v.pub = RegisterProtocols(v.state, v.p2p, nil, common.NewTestEntry(t, common.TestLogLevel))
		}
		validators[i] = v
	}

	follower := newTestState(t, nil, nodes)
	followerSync := newTestP2P(t, network, "", hubSyncAddr)
	followerSync.ProtocolRegistry().Register(net.SessionDefault, NewProtocolSync(follower))

	for _, v := range validators {
		runTestP2P(t, v.p2p)
	}
	runTestP2P(t, followerSync)

	require.Eventually(t, func() bool {
		return validators[0].p2p.ConnectionsCount() == 2 &&
			validators[1].p2p.ConnectionsCount() == 1 &&
			validators[2].p2p.ConnectionsCount() == 1 &&
			followerSync.ConnectionsCount() == 1
	}, testTimeout, testTick)

	var chain []BlockID
	for slot := uint64(1); slot <= 3; slot++ {
		var leader *testValidator
		for _, v := range validators {
			if v.state.LeaderOf(slot) == v.node.p.ID() {
				leader = v
			}
		}
		require.NotNil(t, leader)

		proposal, res, err := leader.state.Propose(slot, [][]byte{[]byte("tx")})
		require.NoError(t, err)
		leader.pub.Publish(res, proposal, "")

		id := proposal.Block.ID()
		chain = append(chain, id)

		require.Eventually(t, func() bool {
			for _, v := range validators {
				info, err := v.state.Block(id)
				if err != nil || !info.Streamlet.Notarized {
					return false
				}
			}
			return true
		}, testTimeout, testTick, "slot %d not notarized everywhere", slot)
	}

	for _, v := range validators {
		require.Eventually(t, func() bool {
			return v.state.LastFinalized().ID() == chain[2]
		}, testTimeout, testTick)
	}

	require.Eventually(t, func() bool {
		return follower.LastFinalized().ID() == chain[2]
	}, testTimeout, testTick)
	assert.Equal(t, chain, ids(follower.FinalizedChain()))
}

// TestProtocolSyncCatchUp finalizes a chain on a lone validator before a
// follower connects to its sync network.
func TestProtocolSyncCatchUp(t *testing.T) {
	network := net.NewInmemNetwork()
	nodes := newTestNodes(t, 1)

	validator := newTestState(t, nodes[0].key, nodes)
	syncAddr := net.NewInmemAddr()
	sync := newTestP2P(t, network, syncAddr)
	sync.ProtocolRegistry().Register(net.SessionDefault, NewProtocolSync(validator))
	runTestP2P(t, sync)

	for slot := uint64(1); slot <= 4; slot++ {
		_, _, err := validator.Propose(slot, nil)
		require.NoError(t, err)
	}
	chain := ids(validator.FinalizedChain())
	require.Len(t, chain, 4)

	follower := newTestState(t, nil, nodes)
	followerSync := newTestP2P(t, network, "", syncAddr)
	followerSync.ProtocolRegistry().Register(net.SessionDefault, NewProtocolSync(follower))
	runTestP2P(t, followerSync)

	require.Eventually(t, func() bool {
		return follower.LastFinalized().ID() == chain[3]
	}, testTimeout, testTick)
	assert.Equal(t, chain, ids(follower.FinalizedChain()))
}
