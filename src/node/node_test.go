package node

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/streamlet/src/common"
	"github.com/mosaicnetworks/streamlet/src/consensus"
	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
	"github.com/mosaicnetworks/streamlet/src/net"
	"github.com/mosaicnetworks/streamlet/src/proxy/dummy"
)

const (
	testTimeout = 10 * time.Second
	testTick    = 10 * time.Millisecond
)

func TestSlotClock(t *testing.T) {
	genesis := time.Unix(1000, 0)
	c := NewSlotClock(genesis, 10*time.Second)

	assert.Equal(t, uint64(0), c.Slot(genesis.Add(-time.Hour)))
	assert.Equal(t, uint64(0), c.Slot(genesis))
	assert.Equal(t, uint64(0), c.Slot(genesis.Add(9*time.Second)))
	assert.Equal(t, uint64(1), c.Slot(genesis.Add(10*time.Second)))
	assert.Equal(t, uint64(42), c.Slot(genesis.Add(425*time.Second)))
	assert.Equal(t, genesis.Add(30*time.Second), c.SlotStart(3))

	var waited time.Duration
	c.now = func() time.Time { return genesis.Add(25 * time.Second) }
	c.timerFactory = func(d time.Duration) <-chan time.Time {
		waited = d
		return nil
	}
	slot, _ := c.Next()
	assert.Equal(t, uint64(3), slot)
	assert.Equal(t, 5*time.Second, waited)
}

type testNodeKey struct {
	key  *ecdsa.PrivateKey
	addr string
}

func newTestKeys(t *testing.T, n int) ([]testNodeKey, []*consensus.Participant) {
	res := make([]testNodeKey, n)
	genesis := make([]*consensus.Participant, n)
	for i := range res {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		res[i] = testNodeKey{key: key, addr: net.NewInmemAddr()}
		genesis[i] = consensus.NewParticipant(&key.PublicKey, res[i].addr, 0)
	}
	return res, genesis
}

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

type testNodeOpts struct {
	key        *ecdsa.PrivateKey
	addr       string
	syncListen string
	syncPeers  []string
}

func newTestNode(t *testing.T,
	conf *Config,
	network *net.InmemNetwork,
	genesis []*consensus.Participant,
	opts testNodeOpts) *Node {

	store := consensus.NewInmemStore(100)
	core, err := consensus.NewValidatorState(consensus.StateConfig{
		Key:           opts.key,
		SlotsPerEpoch: 10,
		GenesisTime:   conf.GenesisTime,
		Genesis:       genesis,
	}, store, conf.Logger)
	require.NoError(t, err)

	var consensusNet *net.P2P
	if opts.key != nil {
		consensusNet = newTestP2P(t, network, opts.addr)
	}
	syncNet := newTestP2P(t, network, opts.syncListen, opts.syncPeers...)

	return NewNode(conf,
		NewValidator(opts.key, "test", opts.addr),
		core,
		store,
		consensusNet,
		syncNet,
		dummy.NewInmemDummyClient(conf.Logger),
	)
}

func testApp(n *Node) *dummy.InmemDummyClient {
	return n.proxy.(*dummy.InmemDummyClient)
}

func runTestNode(t *testing.T, n *Node) {
	done := make(chan error, 1)
	go func() {
		done <- n.Run(context.Background())
	}()

	t.Cleanup(func() {
		n.Shutdown()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(testTimeout):
			t.Error("node did not stop")
		}
	})
}

// TestNodeFinalizesOverTime runs a single validator on short slots, with a
// follower on its sync network.
func TestNodeFinalizesOverTime(t *testing.T) {
	network := net.NewInmemNetwork()
	nodeKeys, genesis := newTestKeys(t, 1)
	conf := TestConfig(t)

	syncAddr := net.NewInmemAddr()
	validator := newTestNode(t, conf, network, genesis, testNodeOpts{
		key:        nodeKeys[0].key,
		addr:       nodeKeys[0].addr,
		syncListen: syncAddr,
	})
	follower := newTestNode(t, conf, network, genesis, testNodeOpts{
		syncPeers: []string{syncAddr},
	})

	runTestNode(t, validator)
	runTestNode(t, follower)

	// the application side blocks until the node takes the transaction
	testApp(validator).SubmitTx([]byte("tx"))

	require.Eventually(t, func() bool {
		return validator.GetState() == Voting && follower.GetState() == Following
	}, testTimeout, testTick)

	require.Eventually(t, func() bool {
		return follower.GetLastFinalized().Block.Slot >= 3
	}, testTimeout, testTick)

	// both applications eventually commit the submitted transaction
	for _, n := range []*Node{validator, follower} {
		app := testApp(n)
		require.Eventually(t, func() bool {
			return len(app.GetCommittedTransactions()) == 1
		}, testTimeout, testTick)
		assert.Equal(t, [][]byte{[]byte("tx")}, app.GetCommittedTransactions())
	}
	assert.Equal(t, testApp(validator).GetStateHash(), testApp(follower).GetStateHash())

	require.Eventually(t, func() bool {
		return validator.GetStats()["state_hash"] == common.EncodeToString(testApp(validator).GetStateHash())
	}, testTimeout, testTick)

	stats := validator.GetStats()
	assert.Equal(t, "0", stats["transaction_pool"])
	assert.Equal(t, keys.PublicKeyHex(&nodeKeys[0].key.PublicKey), stats["id"])
	assert.Equal(t, "", follower.GetStats()["id"])
}

func TestNodeEpochQuarantine(t *testing.T) {
	network := net.NewInmemNetwork()
	nodeKeys, genesis := newTestKeys(t, 3)
	conf := TestConfig(t)

	n := newTestNode(t, conf, network, genesis, testNodeOpts{
		key:  nodeKeys[0].key,
		addr: nodeKeys[0].addr,
	})
	defer n.Shutdown()

	// nobody voted in epoch 1: every genesis participant is quarantined,
	// then the node's keepalive lifts its own quarantine
	n.onEpoch(2)

	for i, p := range genesis {
		got, ok := n.core.Participant(p.ID())
		require.True(t, ok)
		assert.Equal(t, i != 0, got.IsQuarantined(), "participant %d", i)
	}
	assert.Equal(t, "2", n.GetStats()["quarantined"])
}

func TestNodeProposalTransactions(t *testing.T) {
	network := net.NewInmemNetwork()
	nodeKeys, genesis := newTestKeys(t, 1)
	conf := TestConfig(t)
	conf.MaxBlockTxs = 2

	n := newTestNode(t, conf, network, genesis, testNodeOpts{
		key:  nodeKeys[0].key,
		addr: nodeKeys[0].addr,
	})
	defer n.Shutdown()

	n.SubmitTx([]byte("a"))
	n.SubmitTx([]byte("b"))
	n.SubmitTx([]byte("c"))

	n.onSlot(1)
	tip, err := n.GetBlock(n.core.BestTip())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tip.Block.Slot)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, tip.Block.Txs)

	// a failed proposal puts its transactions back in the pool
	n.onSlot(1)
	assert.Equal(t, "1", n.GetStats()["transaction_pool"])
	assert.Equal(t, "1", n.GetStats()["proposals"])

	n.onSlot(2)
	tip, err = n.GetBlock(n.core.BestTip())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tip.Block.Slot)
	assert.Equal(t, [][]byte{[]byte("c")}, tip.Block.Txs)
	assert.Equal(t, "0", n.GetStats()["transaction_pool"])
}

func TestNodeAnnounceJoining(t *testing.T) {
	network := net.NewInmemNetwork()
	nodeKeys, genesis := newTestKeys(t, 2)
	conf := TestConfig(t)
	conf.GenesisTime = time.Now().Add(-25 * conf.SlotDuration)

	// the second key is not part of the genesis roster
	n := newTestNode(t, conf, network, genesis[:1], testNodeOpts{
		key:  nodeKeys[1].key,
		addr: nodeKeys[1].addr,
	})
	defer n.Shutdown()

	n.announce()

	p, ok := n.core.Participant(n.ID())
	require.True(t, ok)
	assert.Equal(t, uint64(3), p.Joined)
	assert.Equal(t, nodeKeys[1].addr, p.Address)
}
